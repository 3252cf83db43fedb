package raw

// Accessors for already-resolved values. They never follow references; use
// the parser's resolver for that.

func AsName(o Object) (string, bool) {
	n, ok := o.(NameObj)
	return n.Val, ok
}

func AsInt(o Object) (int64, bool) {
	n, ok := o.(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}

func AsFloat(o Object) (float64, bool) {
	n, ok := o.(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

func AsBool(o Object) (bool, bool) {
	b, ok := o.(BoolObj)
	return b.V, ok
}

func AsString(o Object) ([]byte, bool) {
	s, ok := o.(StringObj)
	return s.Bytes, ok
}

func AsArray(o Object) (*ArrayObj, bool) {
	a, ok := o.(*ArrayObj)
	return a, ok && a != nil
}

// AsDict returns the dictionary of a dictionary or stream object.
func AsDict(o Object) (*DictObj, bool) {
	switch v := o.(type) {
	case *DictObj:
		return v, v != nil
	case *StreamObj:
		return v.Dict, v != nil && v.Dict != nil
	}
	return nil, false
}

func AsStream(o Object) (*StreamObj, bool) {
	s, ok := o.(*StreamObj)
	return s, ok && s != nil
}

func AsRef(o Object) (ObjectRef, bool) {
	r, ok := o.(RefObj)
	return r.R, ok
}

// IsNull reports whether o is nil or the null object.
func IsNull(o Object) bool {
	if o == nil {
		return true
	}
	_, ok := o.(NullObj)
	return ok
}
