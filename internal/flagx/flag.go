// Package flagx contains helpers for reading a handful of flags out of the
// command line before the main flag set is parsed, so layered configuration
// can locate its sources first.
package flagx

import (
	"flag"
	"io"
	"os"
	"strings"
)

// FilterArgs keeps only the allowed flags (and their values) from args.
//
// Both "-c conf.json" and "--config=conf.json" forms are recognized. A token
// following an allowed flag is taken as its value unless it starts with "-".
// The result is never nil.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; !ok {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// PathFlag extracts a single string flag from args, accepting the long name
// and an optional short alias. The last occurrence wins; an absent flag
// yields "".
func PathFlag(args []string, long, short string) string {
	names := []string{"-" + long, "--" + long}
	if short != "" {
		names = append(names, "-"+short, "--"+short)
	}

	var value string
	fs := flag.NewFlagSet(long, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&value, long, "", "")
	if short != "" {
		fs.StringVar(&value, short, "", "")
	}
	_ = fs.Parse(FilterArgs(args, names))

	return value
}

// ConfigFile returns the JSON config path given with -c or -config.
func ConfigFile() string {
	return PathFlag(os.Args[1:], "config", "c")
}

// EnvFile returns the dotenv path given with -env-file.
func EnvFile() string {
	return PathFlag(os.Args[1:], "env-file", "")
}
