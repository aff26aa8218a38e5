// Package validator implements the bytecode validator: it parses a
// candidate artifact's structural descriptor and classifies the change
// against a previous representation, per §4.3.
//
// The field/method diff pass is adapted from the teacher's
// DefaultConfigComparator (internal/config/update_diff.go): compute two
// maps of structural symbols, walk them to produce Added/Modified/Deleted
// sets, then classify the outcome from those sets rather than from a
// line-by-line bytecode diff — the same shape the teacher uses to decide
// whether a config change is safe to apply live.
package validator

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/rydnr/bytehot-go/internal/domain"
)

// magic is the class-file header validated before any structural parsing is
// attempted; it mirrors the classifier's DefaultConfig().ArtifactMagic.
var magic = []byte{0xCA, 0xFE, 0xBA, 0xBE}

// FieldDescriptor is one structural field symbol: name and a string type
// descriptor (its existence, not its value, is what the validator diffs).
type FieldDescriptor struct {
	Name string
	Type string
}

// MethodDescriptor is one structural method symbol: name plus a signature
// string. A signature change (the same name, a different descriptor) is a
// Rejected signature-change, distinct from a method body edit which never
// touches the descriptor.
type MethodDescriptor struct {
	Name      string
	Signature string
}

// ClassDescriptor is the structural shape of one version of a class
// artifact: everything the validator needs to classify a change without
// caring about method body contents.
type ClassDescriptor struct {
	ClassName  string
	Super      string
	Interfaces []string
	Fields     []FieldDescriptor
	Methods    []MethodDescriptor
	BodyHash   []byte // digest of all method-body regions, order-independent
}

// errMalformed wraps a parse failure with the reason the header or
// structural section could not be read.
type errMalformed struct{ reason string }

func (e errMalformed) Error() string { return "malformed artifact: " + e.reason }

// Validator classifies a candidate artifact against a previous
// representation. With no previous representation it accepts the artifact
// as an initial load; the currently loaded class is not consulted.
type Validator struct{}

// New builds a Validator. It holds no state: every call is given the
// previous representation explicitly, and the orchestrator passes the last
// bytecode it redefined successfully for the type-key.
func New() *Validator {
	return &Validator{}
}

// Validate implements the §4.3 algorithmic contract: parse, reject
// malformed, then diff against previous (when given) to classify.
func (v *Validator) Validate(path domain.ArtifactPath, previous []byte) domain.ValidationOutcome {
	data, err := os.ReadFile(path.AbsolutePath)
	if err != nil {
		return domain.NewMalformed(path, fmt.Sprintf("cannot read artifact: %v", err))
	}

	next, err := parseDescriptor(data)
	if err != nil {
		return domain.NewMalformed(path, err.Error())
	}

	if len(previous) == 0 {
		// No previous representation to compare against: the first sighting of
		// a class is always accepted, there being nothing to be incompatible
		// with yet.
		return domain.NewAccepted(path, domain.CategoryMethodBodyOnly, "initial load, no prior representation")
	}

	prev, err := parseDescriptor(previous)
	if err != nil {
		// A malformed previous representation should never block a well-formed
		// new one; treat it as if there were no previous representation.
		return domain.NewAccepted(path, domain.CategoryMethodBodyOnly, "no comparable prior representation")
	}

	return classify(path, prev, next)
}

func classify(path domain.ArtifactPath, prev, next ClassDescriptor) domain.ValidationOutcome {
	if prev.Super != next.Super || !sameSet(prev.Interfaces, next.Interfaces) {
		return domain.NewRejected(path, domain.CategorySignatureChange, "superclass or interface set changed")
	}

	fieldsAdded, fieldsRemoved, fieldsChanged := diffFields(prev.Fields, next.Fields)
	if len(fieldsAdded) > 0 {
		return domain.NewRejected(path, domain.CategorySchemaFieldAdd, fmt.Sprintf("field(s) added: %v", fieldsAdded))
	}
	if len(fieldsRemoved) > 0 {
		return domain.NewRejected(path, domain.CategorySchemaFieldRemove, fmt.Sprintf("field(s) removed: %v", fieldsRemoved))
	}
	if len(fieldsChanged) > 0 {
		return domain.NewRejected(path, domain.CategorySchemaFieldAdd, fmt.Sprintf("field(s) changed type: %v", fieldsChanged))
	}

	methodsAdded, methodsRemoved, methodsChanged := diffMethods(prev.Methods, next.Methods)
	if len(methodsAdded) > 0 || len(methodsRemoved) > 0 || len(methodsChanged) > 0 {
		return domain.NewRejected(path, domain.CategorySignatureChange,
			fmt.Sprintf("method signature(s) changed: added=%v removed=%v changed=%v", methodsAdded, methodsRemoved, methodsChanged))
	}

	if bytes.Equal(prev.BodyHash, next.BodyHash) {
		return domain.NewAccepted(path, domain.CategoryMethodBodyOnly, "no observable change")
	}
	return domain.NewAccepted(path, domain.CategoryMethodBodyPlus, "method body content changed, structure unchanged")
}

func diffFields(prev, next []FieldDescriptor) (added, removed, changed []string) {
	prevByName := make(map[string]string, len(prev))
	for _, f := range prev {
		prevByName[f.Name] = f.Type
	}
	nextByName := make(map[string]string, len(next))
	for _, f := range next {
		nextByName[f.Name] = f.Type
	}

	for name, t := range nextByName {
		oldType, ok := prevByName[name]
		if !ok {
			added = append(added, name)
		} else if oldType != t {
			changed = append(changed, name)
		}
	}
	for name := range prevByName {
		if _, ok := nextByName[name]; !ok {
			removed = append(removed, name)
		}
	}
	return added, removed, changed
}

func diffMethods(prev, next []MethodDescriptor) (added, removed, changed []string) {
	prevByName := make(map[string]string, len(prev))
	for _, m := range prev {
		prevByName[m.Name] = m.Signature
	}
	nextByName := make(map[string]string, len(next))
	for _, m := range next {
		nextByName[m.Name] = m.Signature
	}

	for name, sig := range nextByName {
		oldSig, ok := prevByName[name]
		if !ok {
			added = append(added, name)
		} else if oldSig != sig {
			changed = append(changed, name)
		}
	}
	for name := range prevByName {
		if _, ok := nextByName[name]; !ok {
			removed = append(removed, name)
		}
	}
	return added, removed, changed
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		seen[v]--
	}
	for _, count := range seen {
		if count != 0 {
			return false
		}
	}
	return true
}

// parseDescriptor decodes a class artifact into its structural shape. It
// reads a fixed-magic header followed by length-prefixed structural
// sections (class name, superclass, interfaces, fields, methods) and a
// digest of the method-body regions; anything shorter than the header, or
// with a mismatched magic, is malformed.
func parseDescriptor(data []byte) (ClassDescriptor, error) {
	r := bytes.NewReader(data)

	header := make([]byte, len(magic))
	if _, err := r.Read(header); err != nil || !bytes.Equal(header, magic) {
		return ClassDescriptor{}, errMalformed{reason: "missing or invalid magic header"}
	}

	readString := func() (string, error) {
		var n uint16
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return "", err
		}
		buf := make([]byte, n)
		if _, err := r.Read(buf); err != nil {
			return "", err
		}
		return string(buf), nil
	}

	readStringSlice := func() ([]string, error) {
		var count uint16
		if err := binary.Read(r, binary.BigEndian, &count); err != nil {
			return nil, err
		}
		out := make([]string, 0, count)
		for i := 0; i < int(count); i++ {
			s, err := readString()
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}

	className, err := readString()
	if err != nil {
		return ClassDescriptor{}, errMalformed{reason: "truncated class name"}
	}
	super, err := readString()
	if err != nil {
		return ClassDescriptor{}, errMalformed{reason: "truncated superclass"}
	}
	interfaces, err := readStringSlice()
	if err != nil {
		return ClassDescriptor{}, errMalformed{reason: "truncated interface list"}
	}

	var fieldCount uint16
	if err := binary.Read(r, binary.BigEndian, &fieldCount); err != nil {
		return ClassDescriptor{}, errMalformed{reason: "truncated field count"}
	}
	fields := make([]FieldDescriptor, 0, fieldCount)
	for i := 0; i < int(fieldCount); i++ {
		name, err := readString()
		if err != nil {
			return ClassDescriptor{}, errMalformed{reason: "truncated field name"}
		}
		typ, err := readString()
		if err != nil {
			return ClassDescriptor{}, errMalformed{reason: "truncated field type"}
		}
		fields = append(fields, FieldDescriptor{Name: name, Type: typ})
	}

	var methodCount uint16
	if err := binary.Read(r, binary.BigEndian, &methodCount); err != nil {
		return ClassDescriptor{}, errMalformed{reason: "truncated method count"}
	}
	methods := make([]MethodDescriptor, 0, methodCount)
	for i := 0; i < int(methodCount); i++ {
		name, err := readString()
		if err != nil {
			return ClassDescriptor{}, errMalformed{reason: "truncated method name"}
		}
		sig, err := readString()
		if err != nil {
			return ClassDescriptor{}, errMalformed{reason: "truncated method signature"}
		}
		methods = append(methods, MethodDescriptor{Name: name, Signature: sig})
	}

	remaining := make([]byte, r.Len())
	if _, err := r.Read(remaining); err != nil && r.Len() > 0 {
		return ClassDescriptor{}, errMalformed{reason: "truncated method-body region"}
	}

	return ClassDescriptor{
		ClassName:  className,
		Super:      super,
		Interfaces: interfaces,
		Fields:     fields,
		Methods:    methods,
		BodyHash:   digest(remaining),
	}, nil
}

// Encode serializes a ClassDescriptor back into the artifact format
// parseDescriptor reads. Production artifacts arrive already encoded this
// way from the toolchain; Encode exists for tests and for tooling that
// synthesizes fixtures.
func Encode(d ClassDescriptor, body []byte) []byte {
	var buf bytes.Buffer
	buf.Write(magic)

	writeString := func(s string) {
		binary.Write(&buf, binary.BigEndian, uint16(len(s)))
		buf.WriteString(s)
	}
	writeStringSlice := func(ss []string) {
		binary.Write(&buf, binary.BigEndian, uint16(len(ss)))
		for _, s := range ss {
			writeString(s)
		}
	}

	writeString(d.ClassName)
	writeString(d.Super)
	writeStringSlice(d.Interfaces)

	binary.Write(&buf, binary.BigEndian, uint16(len(d.Fields)))
	for _, f := range d.Fields {
		writeString(f.Name)
		writeString(f.Type)
	}

	binary.Write(&buf, binary.BigEndian, uint16(len(d.Methods)))
	for _, m := range d.Methods {
		writeString(m.Name)
		writeString(m.Signature)
	}

	buf.Write(body)
	return buf.Bytes()
}

func digest(body []byte) []byte {
	var sum uint64
	for i, b := range body {
		sum = sum*31 + uint64(b) + uint64(i)
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, sum)
	return out
}
