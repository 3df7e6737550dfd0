// Package options defines the generic options interface shared by every component.
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// Join concatenates prefixes with "." and appends a trailing "." when non-empty,
// so that Join("docmind")+"redis.host" yields "docmind.redis.host".
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined != "" {
		joined += "."
	}
	return joined
}

// IOptions defines methods to implement a generic options.
type IOptions interface {
	// Validate validates all the required options.
	Validate() []error

	// AddFlags adds flags related to given flagset.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAll collects the validation errors of every non-nil option.
func ValidateAll(opts ...IOptions) []error {
	var errs []error
	for _, o := range opts {
		if o == nil {
			continue
		}
		errs = append(errs, o.Validate()...)
	}
	return errs
}
