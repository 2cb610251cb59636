package health

import (
	"context"
	"fmt"
	"os"
)

// DirCheck fails when dir is missing or not a directory.
func DirCheck(dir string) CheckFunc {
	return func(ctx context.Context) error {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		return nil
	}
}

// CapacityCheck fails when usage reports a value above limit. A zero limit
// always passes.
func CapacityCheck(what string, usage func() int64, limit int64) CheckFunc {
	return func(ctx context.Context) error {
		if limit <= 0 {
			return nil
		}
		if used := usage(); used > limit {
			return fmt.Errorf("%s %d exceeds limit %d", what, used, limit)
		}
		return nil
	}
}

// FailureCheck fails once failures reports threshold or more consecutive
// failures.
func FailureCheck(failures func() int, threshold int) CheckFunc {
	return func(ctx context.Context) error {
		if n := failures(); threshold > 0 && n >= threshold {
			return fmt.Errorf("%d consecutive failures", n)
		}
		return nil
	}
}
