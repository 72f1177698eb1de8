package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/engine"
)

// tuningFlags are the per-run transfer settings. They are not stored with
// the job, so a resumed job can run with different ones.
type tuningFlags struct {
	verify    bool
	blockSize string
	bwLimit   string
}

func (t *tuningFlags) register(fs *pflag.FlagSet) {
	fs.BoolVar(&t.verify, "verify", false, "verify each copied file against its source (BLAKE3)")
	fs.StringVar(&t.blockSize, "block-size", "", "copy chunk size before rounding to the filesystem block (e.g. 128K, 1M)")
	fs.StringVar(&t.bwLimit, "bwlimit", "", "bandwidth limit (e.g. 100M, 1G)")
}

// tuning is the parsed form of tuningFlags.
type tuning struct {
	limiter   *rate.Limiter
	blockSize int64
	verify    bool
}

// resolve applies config defaults for flags not set on the command line
// and parses the sizes.
func (t *tuningFlags) resolve(cmd *cobra.Command, defaults config.DefaultsConfig) (tuning, error) {
	if !cmd.Flags().Changed("verify") && defaults.Verify != nil {
		t.verify = *defaults.Verify
	}
	if !cmd.Flags().Changed("block-size") && defaults.BlockSize != nil {
		t.blockSize = *defaults.BlockSize
	}
	if !cmd.Flags().Changed("bwlimit") && defaults.BWLimit != nil {
		t.bwLimit = *defaults.BWLimit
	}

	out := tuning{verify: t.verify}
	if t.blockSize != "" {
		n, err := config.ParseSize(t.blockSize)
		if err != nil {
			return tuning{}, fmt.Errorf("invalid --block-size: %w", err)
		}
		out.blockSize = n
	}
	if t.bwLimit != "" {
		n, err := config.ParseSize(t.bwLimit)
		if err != nil {
			return tuning{}, fmt.Errorf("invalid --bwlimit: %w", err)
		}
		if n > 0 {
			out.limiter = engine.NewBWLimiter(n)
		}
	}
	return out, nil
}
