package model

import "fmt"

func conflictf(format string, args ...any) error { return fmt.Errorf("conflict: "+format, args...) }
func notfoundf(format string, args ...any) error { return fmt.Errorf("not found: "+format, args...) }
