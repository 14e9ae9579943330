package native

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"
)

// PrintStream represents a java.io.PrintStream.
type PrintStream struct {
	mu     sync.Mutex
	Writer io.Writer
}

func NewPrintStream(w io.Writer) *PrintStream {
	return &PrintStream{Writer: w}
}

func (ps *PrintStream) ClassName() string { return "java/io/PrintStream" }

// Println prints a value followed by a newline.
func (ps *PrintStream) Println(args ...interface{}) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if len(args) == 0 {
		fmt.Fprintln(ps.Writer)
		return
	}
	fmt.Fprintln(ps.Writer, Format(args[0]))
}

// Print prints a value without a newline.
func (ps *PrintStream) Print(arg interface{}) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	fmt.Fprint(ps.Writer, Format(arg))
}

// Format renders a value the way String.valueOf does for the types the
// interpreter hands to PrintStream.
func Format(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case float32:
		return formatFloat(float64(v), 32)
	case float64:
		return formatFloat(v, 64)
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e7:
		return strconv.FormatFloat(f, 'f', 1, bits)
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}
