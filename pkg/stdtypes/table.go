package stdtypes

import (
	"github.com/go-delve/nativeview/pkg/native"
	"github.com/go-delve/nativeview/pkg/usertype"
)

func init() {
	castString := func(v native.Value) (usertype.Adapter, error) {
		s, err := NewBasicString(v)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	usertype.Default.Register(BasicStringType, castString)
	usertype.Default.Register("std::string", castString)
	usertype.Default.Register("std::wstring", func(v native.Value) (usertype.Adapter, error) {
		s, err := NewWString(v)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Lookup returns the cast function of the user type called name.
func Lookup(name string) (usertype.CastFunc, bool) {
	return usertype.Default.Lookup(name)
}

// Names returns the names of the user types that values can be casted to.
func Names() []string {
	return usertype.Default.Names()
}
