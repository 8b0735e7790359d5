package policy

import (
	"reflect"

	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// nullSafeMap decorates a CEL map value so that Find on an undefined key
// returns CEL's null value with ok=true instead of the "no such key"
// evaluation error CEL's own maps produce. This realizes spec §4.6: "fields
// not present in the binding evaluate to a null-like value".
type nullSafeMap struct {
	inner traits.Mapper
}

func wrapNullSafe(v ref.Val) ref.Val {
	if _, already := v.(*nullSafeMap); already {
		return v
	}
	if m, ok := v.(traits.Mapper); ok {
		return &nullSafeMap{inner: m}
	}
	return v
}

// newBindingMap converts a plain Go map into the ref.Val CEL programs bind
// user/input/response to.
func newBindingMap(values map[string]any) ref.Val {
	if values == nil {
		values = map[string]any{}
	}
	return wrapNullSafe(types.DefaultTypeAdapter.NativeToValue(values))
}

func (m *nullSafeMap) Find(key ref.Val) (ref.Val, bool) {
	v, found := m.inner.Find(key)
	if !found {
		return types.NullValue, true
	}
	return wrapNullSafe(v), true
}

func (m *nullSafeMap) Get(index ref.Val) ref.Val {
	v, _ := m.Find(index)
	return v
}

func (m *nullSafeMap) Contains(index ref.Val) ref.Val { return m.inner.Contains(index) }
func (m *nullSafeMap) Iterator() traits.Iterator      { return m.inner.Iterator() }
func (m *nullSafeMap) Size() ref.Val                  { return m.inner.Size() }

func (m *nullSafeMap) ConvertToNative(typeDesc reflect.Type) (any, error) {
	return m.inner.ConvertToNative(typeDesc)
}
func (m *nullSafeMap) ConvertToType(typeVal ref.Type) ref.Val { return m.inner.ConvertToType(typeVal) }
func (m *nullSafeMap) Equal(other ref.Val) ref.Val            { return m.inner.Equal(other) }
func (m *nullSafeMap) Type() ref.Type                         { return m.inner.Type() }
func (m *nullSafeMap) Value() any                             { return m.inner.Value() }
