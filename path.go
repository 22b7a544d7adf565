package hxstate

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// lookupPath walks path through maps, slices, pointers, interfaces and
// struct fields (matched by json tag or field name).
func lookupPath(cur reflect.Value, path []string) (reflect.Value, error) {
	for i, seg := range path {
		cur = indirect(cur)
		if !cur.IsValid() {
			return reflect.Value{}, pathErr(path[:i+1], "nil value")
		}
		switch cur.Kind() {
		case reflect.Map:
			k, err := mapKey(cur.Type().Key(), seg)
			if err != nil {
				return reflect.Value{}, pathErr(path[:i+1], err.Error())
			}
			v := cur.MapIndex(k)
			if !v.IsValid() {
				return reflect.Value{}, pathErr(path[:i+1], "no such key")
			}
			cur = v
		case reflect.Slice, reflect.Array:
			idx, err := sliceIndex(cur, seg)
			if err != nil {
				return reflect.Value{}, pathErr(path[:i+1], err.Error())
			}
			cur = cur.Index(idx)
		case reflect.Struct:
			f, ok := structField(cur, seg)
			if !ok {
				return reflect.Value{}, pathErr(path[:i+1], "no such field")
			}
			cur = f
		default:
			return reflect.Value{}, pathErr(path[:i+1], "cannot index "+cur.Kind().String())
		}
	}
	return cur, nil
}

// assignPath returns cur with the value at path replaced by nv. Maps,
// slices and pointers are updated in place; structs and interfaces are
// copied and the copy returned, so the caller must store the result.
func assignPath(cur reflect.Value, path []string, nv any) (reflect.Value, error) {
	if len(path) == 0 {
		return coerce(nv, cur.Type())
	}
	seg, rest := path[0], path[1:]
	switch cur.Kind() {
	case reflect.Interface:
		if cur.IsNil() {
			return reflect.Value{}, pathErr(path, "nil value")
		}
		inner, err := assignPath(cur.Elem(), path, nv)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(cur.Type()).Elem()
		out.Set(inner)
		return out, nil
	case reflect.Pointer:
		if cur.IsNil() {
			return reflect.Value{}, pathErr(path, "nil pointer")
		}
		inner, err := assignPath(cur.Elem(), path, nv)
		if err != nil {
			return reflect.Value{}, err
		}
		cur.Elem().Set(inner)
		return cur, nil
	case reflect.Map:
		if cur.IsNil() {
			return reflect.Value{}, pathErr(path[:1], "nil map")
		}
		k, err := mapKey(cur.Type().Key(), seg)
		if err != nil {
			return reflect.Value{}, pathErr(path[:1], err.Error())
		}
		elem := cur.MapIndex(k)
		if !elem.IsValid() {
			if len(rest) > 0 {
				return reflect.Value{}, pathErr(path[:1], "no such key")
			}
			elem = reflect.Zero(cur.Type().Elem())
		}
		inner, err := assignPath(elem, rest, nv)
		if err != nil {
			return reflect.Value{}, err
		}
		cur.SetMapIndex(k, inner)
		return cur, nil
	case reflect.Slice:
		idx, err := sliceIndex(cur, seg)
		if err != nil {
			return reflect.Value{}, pathErr(path[:1], err.Error())
		}
		inner, err := assignPath(cur.Index(idx), rest, nv)
		if err != nil {
			return reflect.Value{}, err
		}
		cur.Index(idx).Set(inner)
		return cur, nil
	case reflect.Struct:
		out := reflect.New(cur.Type()).Elem()
		out.Set(cur)
		f, ok := structField(out, seg)
		if !ok {
			return reflect.Value{}, pathErr(path[:1], "no such field")
		}
		inner, err := assignPath(f, rest, nv)
		if err != nil {
			return reflect.Value{}, err
		}
		f.Set(inner)
		return out, nil
	default:
		return reflect.Value{}, pathErr(path[:1], "cannot index "+cur.Kind().String())
	}
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func coerce(nv any, t reflect.Type) (reflect.Value, error) {
	if nv == nil {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(nv)
	if v.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(v)
		return out, nil
	}
	if isNumber(v.Kind()) && isNumber(t.Kind()) {
		return v.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot assign %s to %s", ErrPath, v.Type(), t)
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func mapKey(t reflect.Type, seg string) (reflect.Value, error) {
	if t.Kind() != reflect.String {
		return reflect.Value{}, fmt.Errorf("unsupported map key type %s", t)
	}
	return reflect.ValueOf(seg).Convert(t), nil
}

func sliceIndex(v reflect.Value, seg string) (int, error) {
	idx, err := strconv.Atoi(seg)
	if err != nil {
		return 0, fmt.Errorf("bad index %q", seg)
	}
	if idx < 0 || idx >= v.Len() {
		return 0, fmt.Errorf("index %d out of range", idx)
	}
	return idx, nil
}

func structField(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag == name || (tag == "" && f.Name == name) || f.Name == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func pathErr(path []string, msg string) error {
	return fmt.Errorf("%w: %s: %s", ErrPath, strings.Join(path, "."), msg)
}
