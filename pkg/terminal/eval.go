package terminal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-delve/nativeview/pkg/native"
	"github.com/go-delve/nativeview/pkg/session"
)

// evalExpr evaluates expr in the context of process p. Supported
// expressions are global variables and typed addresses, (T)(A), followed
// by member accesses and array indexes, optionally preceded by any number
// of dereferences.
func evalExpr(p *session.Process, expr string) (*native.Variable, error) {
	rest := strings.TrimSpace(expr)
	derefs := 0
	for strings.HasPrefix(rest, "*") {
		derefs++
		rest = strings.TrimSpace(rest[1:])
	}

	var v *native.Variable
	var err error
	if strings.HasPrefix(rest, "(") {
		var typ, addrstr string
		typ, rest, err = splitParen(rest)
		if err != nil {
			return nil, err
		}
		addrstr, rest, err = splitParen(rest)
		if err != nil {
			return nil, err
		}
		addr, err := strconv.ParseUint(strings.TrimSpace(addrstr), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q", addrstr)
		}
		v, err = p.NewVariable(addr, strings.TrimSpace(typ))
		if err != nil {
			return nil, err
		}
	} else {
		n := scanName(rest)
		if n == 0 {
			return nil, fmt.Errorf("invalid expression %q", expr)
		}
		v, err = p.Variable(rest[:n])
		if err != nil {
			return nil, err
		}
		rest = rest[n:]
	}

	for rest != "" {
		switch {
		case strings.HasPrefix(rest, "->"):
			v, err = v.Deref()
			if err != nil {
				return nil, err
			}
			rest = "." + rest[2:]
		case rest[0] == '.':
			n := scanIdent(rest[1:])
			if n == 0 {
				return nil, fmt.Errorf("invalid expression %q: member name expected", expr)
			}
			v, err = v.StructMember(rest[1 : n+1])
			if err != nil {
				return nil, err
			}
			rest = rest[n+1:]
		case rest[0] == '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, fmt.Errorf("invalid expression %q: missing ]", expr)
			}
			i, err := strconv.ParseInt(strings.TrimSpace(rest[1:end]), 0, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid index %q", rest[1:end])
			}
			v, err = v.Index(i)
			if err != nil {
				return nil, err
			}
			rest = rest[end+1:]
		default:
			return nil, fmt.Errorf("invalid expression %q: unexpected %q", expr, rest)
		}
	}

	for ; derefs > 0; derefs-- {
		v, err = v.Deref()
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

// splitParen splits s, which must start with an open parenthesis, into the
// text between it and the matching close parenthesis and what follows.
func splitParen(s string) (inner, rest string, err error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") {
		return "", "", fmt.Errorf("expected ( in %q", s)
	}
	depth := 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], strings.TrimSpace(s[i+1:]), nil
			}
		}
	}
	return "", "", fmt.Errorf("unbalanced parenthesis in %q", s)
}

// scanName returns the length of the qualified name at the start of s.
func scanName(s string) int {
	n := 0
	for {
		i := scanIdent(s[n:])
		if i == 0 {
			return n
		}
		n += i
		if !strings.HasPrefix(s[n:], "::") {
			return n
		}
		if scanIdent(s[n+2:]) == 0 {
			return n
		}
		n += 2
	}
}

func scanIdent(s string) int {
	for i, c := range s {
		switch {
		case c == '_' || c == '$' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z'):
		case '0' <= c && c <= '9' && i > 0:
		default:
			return i
		}
	}
	return len(s)
}
