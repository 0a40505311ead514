package terminal

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/go-delve/nativeview/pkg/config"
)

func configureCmd(t *Term, ctx callContext, args string) error {
	switch args {
	case "":
		return errors.New(`wrong number of arguments to "config"`)
	case "-list":
		return configureList(t)
	case "-save":
		return config.SaveConfig(t.conf)
	}
	v := split2PartsBySpace(args)
	name, rest := v[0], ""
	if len(v) == 2 {
		rest = v[1]
	}
	if name == "alias" {
		return configureSetAlias(t, rest)
	}
	if err := configureSet(t.conf, name, rest); err != nil {
		return err
	}
	t.applyConfig()
	return nil
}

// configOption is a field of config.Config, named after its yaml key.
type configOption struct {
	name  string
	value reflect.Value
}

func configOptions(conf *config.Config) []configOption {
	cv := reflect.ValueOf(conf).Elem()
	opts := make([]configOption, 0, cv.NumField())
	for i := 0; i < cv.NumField(); i++ {
		name, _, _ := strings.Cut(cv.Type().Field(i).Tag.Get("yaml"), ",")
		if name == "" || name == "aliases" {
			continue
		}
		opts = append(opts, configOption{name, cv.Field(i)})
	}
	return opts
}

func configureList(t *Term) error {
	w := tabwriter.NewWriter(t.stdout, 0, 8, 1, ' ', 0)
	for _, opt := range configOptions(t.conf) {
		v := opt.value
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				fmt.Fprintf(w, "%s\t<not defined>\n", opt.name)
				continue
			}
			v = v.Elem()
		}
		fmt.Fprintf(w, "%s\t%v\n", opt.name, v)
	}
	fmt.Fprintf(w, "aliases\t%v\n", t.conf.Aliases)
	return w.Flush()
}

func configureSet(conf *config.Config, name, arg string) error {
	var field reflect.Value
	for _, opt := range configOptions(conf) {
		if opt.name == name {
			field = opt.value
			break
		}
	}
	if !field.IsValid() {
		return fmt.Errorf("%q is not a configuration parameter", name)
	}

	typ := field.Type()
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}

	var val interface{}
	switch typ.Kind() {
	case reflect.Slice:
		if typ.Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported type for configuration key %q", name)
		}
		argv, err := splitArgs(arg)
		if err != nil {
			return err
		}
		val = argv
	case reflect.Int:
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("argument to %q must be a number", name)
		}
		if n < 0 {
			return fmt.Errorf("argument to %q must be a number greater than zero", name)
		}
		val = n
	case reflect.Bool:
		b, err := strconv.ParseBool(arg)
		if err != nil {
			return fmt.Errorf("argument to %q must be true or false", name)
		}
		val = b
	default:
		return fmt.Errorf("unsupported type for configuration key %q", name)
	}

	rv := reflect.ValueOf(val)
	if field.Kind() == reflect.Ptr {
		p := reflect.New(typ)
		p.Elem().Set(rv)
		rv = p
	}
	field.Set(rv)
	return nil
}

// configureSetAlias adds the alias in "config alias <command> <alias>" and
// removes it in "config alias <alias>".
func configureSetAlias(t *Term, rest string) error {
	argv, err := splitArgs(rest)
	if err != nil {
		return err
	}
	switch len(argv) {
	case 1:
		for cmd, aliases := range t.conf.Aliases {
			for i, alias := range aliases {
				if alias == argv[0] {
					t.conf.Aliases[cmd] = append(aliases[:i:i], aliases[i+1:]...)
					break
				}
			}
		}
	case 2:
		cmd, alias := argv[0], argv[1]
		if t.conf.Aliases == nil {
			t.conf.Aliases = make(map[string][]string)
		}
		t.conf.Aliases[cmd] = append(t.conf.Aliases[cmd], alias)
	default:
		return errors.New(`wrong number of arguments to "config alias"`)
	}
	t.cmds.Merge(t.conf.Aliases)
	return nil
}

// applyConfig propagates the caching options of the configuration to the
// session.
func (t *Term) applyConfig() {
	t.sess.SetCachingEnabled(t.conf.VariableCaching())
	t.sess.SetUserCastCachingEnabled(t.conf.UserCastedVariableCaching())
}
