package variants

import "errors"

// ErrRedirectArgument is returned when "<" is the last argument
var ErrRedirectArgument = errors.New("stdin redirection is missing a file name")

// ExtractRedirect removes a "< file" pair from args. The input slice is not modified.
func ExtractRedirect(args []string) (rest []string, file string, found bool, err error) {
	for i, a := range args {
		if a != "<" {
			continue
		}
		if i+1 >= len(args) {
			return args, "", false, ErrRedirectArgument
		}
		rest = make([]string, 0, len(args)-2)
		rest = append(rest, args[:i]...)
		rest = append(rest, args[i+2:]...)
		return rest, args[i+1], true, nil
	}
	return args, "", false, nil
}
