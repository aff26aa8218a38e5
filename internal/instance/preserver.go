package instance

import (
	"fmt"
	"reflect"
	"time"

	"github.com/rydnr/bytehot-go/internal/domain"
)

// Preserver captures and restores per-instance state via reflection, per
// §4.5. It excludes unexported fields and static/final fields (there is no
// Go analogue; the guest language's static and final fields are modeled
// here as fields tagged `hotswap:"static"` or `hotswap:"final"` on the
// struct used to represent a tracked instance). Fields are not excluded by
// their type: an immutable-valued field is captured and restored like any
// other exported field.
type Preserver struct{}

// NewPreserver builds a Preserver.
func NewPreserver() *Preserver {
	return &Preserver{}
}

// Snapshot captures instance's mutable, non-final, non-immutable-valued
// fields into an ordered StateSnapshot. It is pure with respect to
// instance's observable state: no field is mutated.
func (p *Preserver) Snapshot(typeKey string, instance any) (domain.StateSnapshot, error) {
	v := reflect.ValueOf(instance)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return domain.StateSnapshot{}, fmt.Errorf("instance: cannot snapshot nil pointer of type %s", typeKey)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return domain.StateSnapshot{}, fmt.Errorf("instance: cannot snapshot non-struct value of type %s", typeKey)
	}

	t := v.Type()
	fields := make(map[string]domain.FieldValue)
	order := make([]string, 0, t.NumField())

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		if isExcluded(sf) {
			continue
		}
		order = append(order, sf.Name)
		fields[sf.Name] = v.Field(i).Interface()
	}

	return domain.StateSnapshot{
		TypeKey:    typeKey,
		FieldOrder: order,
		Fields:     fields,
		CapturedAt: time.Now().UTC(),
	}, nil
}

// Restore sets exactly the intersection of snapshot keys and target's
// mutable fields, per §4.5: fields present only in the snapshot are
// discarded, fields present only on target are left at their default.
// Failure to access any field aborts the whole restore.
func (p *Preserver) Restore(snapshot domain.StateSnapshot, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("instance: restore target must be a non-nil pointer")
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("instance: restore target must point to a struct")
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || isExcluded(sf) {
			continue
		}
		value, ok := snapshot.Get(sf.Name)
		if !ok {
			continue
		}
		field := v.Field(i)
		if !field.CanSet() {
			return fmt.Errorf("instance: cannot set field %q on type %s", sf.Name, snapshot.TypeKey)
		}
		rv := reflect.ValueOf(value)
		if !rv.IsValid() {
			continue
		}
		if !rv.Type().AssignableTo(field.Type()) {
			return fmt.Errorf("instance: field %q type mismatch: snapshot has %s, target wants %s", sf.Name, rv.Type(), field.Type())
		}
		field.Set(rv)
	}
	return nil
}

// isExcluded reports whether a struct field is outside the snapshot/restore
// contract: tagged `hotswap:"static"` or `hotswap:"final"`. The field's type
// is not inspected.
func isExcluded(sf reflect.StructField) bool {
	tag := sf.Tag.Get("hotswap")
	if tag == "static" || tag == "final" {
		return true
	}
	return false
}
