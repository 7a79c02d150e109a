package main

import "fmt"

// optToken is one decoded single-letter option from a fused `-abc` group,
// in the exact order it appeared on the command line. Value is empty for
// boolean options.
type optToken struct {
	Flag  byte
	Value string
}

// parseOptions is a single forward-scanning option loop: options are
// single dash-prefixed letters that may be fused in one token
// (`-ciN` == `-c -i -N`); a letter in takesArg consumes either the rest
// of its token or the next whole token as its argument, and scanning
// stops at the first token that isn't an option (or at a literal "--",
// which is itself consumed). Everything from there on is returned as
// positional arguments — sgrep has no interspersed flags/positionals.
func parseOptions(args []string, takesArg map[byte]bool) (opts []optToken, rest []string, err error) {
	i := 0
	for i < len(args) {
		a := args[i]
		if a == "--" {
			i++
			break
		}
		if len(a) < 2 || a[0] != '-' {
			break
		}
		j := 1
		for j < len(a) {
			c := a[j]
			if takesArg[c] {
				var val string
				if j+1 < len(a) {
					val = a[j+1:]
				} else {
					i++
					if i >= len(args) {
						return nil, nil, fmt.Errorf("option -%c requires an argument", c)
					}
					val = args[i]
				}
				opts = append(opts, optToken{Flag: c, Value: val})
				j = len(a)
				break
			}
			opts = append(opts, optToken{Flag: c})
			j++
		}
		i++
	}
	rest = args[i:]
	return opts, rest, nil
}
