package pidcalib

import (
	"fmt"
	"strconv"
)

// StringArrayFlags collects the values of a repeatable command-line flag,
// e.g. multiple -pid-cut or -bin-var options.
type StringArrayFlags struct {
	Array   []string
	beenSet bool
}

func (f *StringArrayFlags) Set(value string) error {
	if !f.beenSet {
		f.beenSet = true
		f.Array = nil
	}
	f.Array = append(f.Array, value)
	return nil
}

func (f *StringArrayFlags) String() string {
	return fmt.Sprint(f.Array)
}

// FloatArrayFlags collects the float64 values of a repeatable flag, e.g.
// explicit bin edges given on the command line.
type FloatArrayFlags struct {
	Array   []float64
	beenSet bool
}

func (f *FloatArrayFlags) Set(valueStr string) error {
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return err
	}
	if !f.beenSet {
		f.beenSet = true
		f.Array = nil
	}
	f.Array = append(f.Array, value)
	return nil
}

func (f *FloatArrayFlags) String() string {
	return fmt.Sprint(f.Array)
}
