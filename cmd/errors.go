package cmd

import "fmt"

// UnknownFormatError reports an unsupported --format value.
type UnknownFormatError struct {
	Format  string
	Allowed []string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("unknown format %q (expected one of %v)", e.Format, e.Allowed)
}

// RunFailedError signals that some analyzer runs returned an error.
type RunFailedError struct {
	Failed int
	Total  int
}

func (e *RunFailedError) Error() string {
	if e.Total == 1 {
		return "analyzer run failed"
	}
	return fmt.Sprintf("%d of %d analyzer runs failed", e.Failed, e.Total)
}
