package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var colors = map[string]string{
	"text":  "\x1b[38;5;6m%s\x1b[0m",
	"debug": "\x1b[32mDEBUG\x1b[0m",
	"gray":  "\x1b[38;5;8m%s\x1b[0m",
	"info":  "\x1b[38;5;111mINFO\x1b[0m",
	"warn":  "\x1b[38;5;214mWARN\x1b[0m",
	"error": "\x1b[38;5;204mERROR\x1b[0m",
	"fatal": "\x1b[38;5;52mFATAL\x1b[0m",
}

// Options configures New.
type Options struct {
	Verbose bool
	// NoColor forces plain output. Color is also disabled when Out is not a terminal.
	NoColor bool
}

// New returns a console logger writing to out.
func New(out io.Writer, opts Options) zerolog.Logger {
	noColor := opts.NoColor || !isTerminal(out)
	if f, ok := out.(*os.File); ok && !noColor {
		out = colorable.NewColorable(f)
	}

	w := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    noColor,
		TimeFormat: time.TimeOnly,
	}
	if !noColor {
		w.FormatLevel = func(i interface{}) string {
			name := fmt.Sprintf("%s", i)
			if colored, ok := colors[name]; ok {
				return colored
			}
			return name
		}
		w.FormatMessage = func(i interface{}) string {
			if i == nil {
				return ""
			}
			return fmt.Sprintf(colors["text"], i)
		}
		w.FormatFieldName = func(i interface{}) string {
			return fmt.Sprintf(colors["gray"], fmt.Sprintf("%s=", i))
		}
	}

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
