package vmb

import (
	"fmt"

	"github.com/EtchedChampion/drd-VmbPy/internal/vmbc"
)

func (f *Feature) viewErr(want FeatureType) error {
	return fmt.Errorf("feature %q exposes %s, not %s: %w", f.info.Name, f.Type(), want, ErrWrongType)
}

// Int returns the integer view of the feature, failing when the feature
// exposes a different interface.
func (f *Feature) Int() (*IntFeature, error) {
	if f.Type() != FeatureTypeInt {
		return nil, f.viewErr(FeatureTypeInt)
	}
	return &IntFeature{f}, nil
}

// Float returns the float view of the feature.
func (f *Feature) Float() (*FloatFeature, error) {
	if f.Type() != FeatureTypeFloat {
		return nil, f.viewErr(FeatureTypeFloat)
	}
	return &FloatFeature{f}, nil
}

// Bool returns the boolean view of the feature.
func (f *Feature) Bool() (*BoolFeature, error) {
	if f.Type() != FeatureTypeBool {
		return nil, f.viewErr(FeatureTypeBool)
	}
	return &BoolFeature{f}, nil
}

// StringFeature returns the string view of the feature. Named after the
// view type since String is taken by fmt.Stringer.
func (f *Feature) StringFeature() (*StringFeature, error) {
	if f.Type() != FeatureTypeString {
		return nil, f.viewErr(FeatureTypeString)
	}
	return &StringFeature{f}, nil
}

// Enum returns the enumeration view of the feature.
func (f *Feature) Enum() (*EnumFeature, error) {
	if f.Type() != FeatureTypeEnum {
		return nil, f.viewErr(FeatureTypeEnum)
	}
	return &EnumFeature{f}, nil
}

// Command returns the command view of the feature.
func (f *Feature) Command() (*CommandFeature, error) {
	if f.Type() != FeatureTypeCommand {
		return nil, f.viewErr(FeatureTypeCommand)
	}
	return &CommandFeature{f}, nil
}

// Raw returns the raw register view of the feature.
func (f *Feature) Raw() (*RawFeature, error) {
	if f.Type() != FeatureTypeRaw {
		return nil, f.viewErr(FeatureTypeRaw)
	}
	return &RawFeature{f}, nil
}

// IntFeature is the typed view of an integer feature.
type IntFeature struct{ *Feature }

// Get returns the current value.
func (f *IntFeature) Get() (int64, error) {
	if err := f.checkRead(); err != nil {
		return 0, err
	}
	v, err := f.api.FeatureIntGet(f.handle, f.info.Name)
	return v, wrapStatus(err)
}

// Set writes a new value. Values outside the range or off the increment
// grid fail with ErrRange describing the valid values.
func (f *IntFeature) Set(v int64) error {
	if err := f.checkWrite(); err != nil {
		return err
	}

	err := f.api.FeatureIntSet(f.handle, f.info.Name, v)
	if vmbc.CodeOf(err) == vmbc.ErrInvalidValue {
		min, max, rErr := f.api.FeatureIntRangeQuery(f.handle, f.info.Name)
		inc, iErr := f.api.FeatureIntIncrementQuery(f.handle, f.info.Name)
		if rErr == nil && iErr == nil {
			return fmt.Errorf("value %d is invalid for feature %q, valid values are [%d, %d] in steps of %d: %w",
				v, f.info.Name, min, max, inc, ErrRange)
		}
	}
	return wrapStatus(err)
}

// Range returns the minimum and maximum accepted value.
func (f *IntFeature) Range() (min, max int64, err error) {
	if err := f.checkRead(); err != nil {
		return 0, 0, err
	}
	min, max, err = f.api.FeatureIntRangeQuery(f.handle, f.info.Name)
	return min, max, wrapStatus(err)
}

// Increment returns the step between accepted values.
func (f *IntFeature) Increment() (int64, error) {
	if err := f.checkRead(); err != nil {
		return 0, err
	}
	inc, err := f.api.FeatureIntIncrementQuery(f.handle, f.info.Name)
	return inc, wrapStatus(err)
}

// FloatFeature is the typed view of a float feature.
type FloatFeature struct{ *Feature }

// Get returns the current value.
func (f *FloatFeature) Get() (float64, error) {
	if err := f.checkRead(); err != nil {
		return 0, err
	}
	v, err := f.api.FeatureFloatGet(f.handle, f.info.Name)
	return v, wrapStatus(err)
}

// Set writes a new value. Out of range values fail with ErrRange
// describing the valid bounds.
func (f *FloatFeature) Set(v float64) error {
	if err := f.checkWrite(); err != nil {
		return err
	}

	err := f.api.FeatureFloatSet(f.handle, f.info.Name, v)
	if vmbc.CodeOf(err) == vmbc.ErrInvalidValue {
		min, max, rErr := f.api.FeatureFloatRangeQuery(f.handle, f.info.Name)
		if rErr == nil {
			return fmt.Errorf("value %g is invalid for feature %q, valid values are [%g, %g]: %w",
				v, f.info.Name, min, max, ErrRange)
		}
	}
	return wrapStatus(err)
}

// Range returns the minimum and maximum accepted value.
func (f *FloatFeature) Range() (min, max float64, err error) {
	if err := f.checkRead(); err != nil {
		return 0, 0, err
	}
	min, max, err = f.api.FeatureFloatRangeQuery(f.handle, f.info.Name)
	return min, max, wrapStatus(err)
}

// Increment returns the step between accepted values and whether the
// feature has one at all.
func (f *FloatFeature) Increment() (inc float64, has bool, err error) {
	if err := f.checkRead(); err != nil {
		return 0, false, err
	}
	inc, has, err = f.api.FeatureFloatIncrementQuery(f.handle, f.info.Name)
	return inc, has, wrapStatus(err)
}

// BoolFeature is the typed view of a boolean feature.
type BoolFeature struct{ *Feature }

// Get returns the current value.
func (f *BoolFeature) Get() (bool, error) {
	if err := f.checkRead(); err != nil {
		return false, err
	}
	v, err := f.api.FeatureBoolGet(f.handle, f.info.Name)
	return v, wrapStatus(err)
}

// Set writes a new value.
func (f *BoolFeature) Set(v bool) error {
	if err := f.checkWrite(); err != nil {
		return err
	}
	return wrapStatus(f.api.FeatureBoolSet(f.handle, f.info.Name, v))
}

// StringFeature is the typed view of a string feature.
type StringFeature struct{ *Feature }

// Get returns the current value.
func (f *StringFeature) Get() (string, error) {
	if err := f.checkRead(); err != nil {
		return "", err
	}
	v, err := f.api.FeatureStringGet(f.handle, f.info.Name)
	return v, wrapStatus(err)
}

// Set writes a new value. Values longer than MaxLength fail with ErrRange.
func (f *StringFeature) Set(v string) error {
	if err := f.checkWrite(); err != nil {
		return err
	}

	err := f.api.FeatureStringSet(f.handle, f.info.Name, v)
	if vmbc.CodeOf(err) == vmbc.ErrInvalidValue {
		if max, mErr := f.api.FeatureStringMaxlengthQuery(f.handle, f.info.Name); mErr == nil {
			return fmt.Errorf("value of length %d is invalid for feature %q, maximum length is %d: %w",
				len(v), f.info.Name, max, ErrRange)
		}
	}
	return wrapStatus(err)
}

// MaxLength returns the maximum accepted value length.
func (f *StringFeature) MaxLength() (int, error) {
	if err := f.checkRead(); err != nil {
		return 0, err
	}
	n, err := f.api.FeatureStringMaxlengthQuery(f.handle, f.info.Name)
	return n, wrapStatus(err)
}

// EnumEntry is one entry of an enumeration feature. Entries compare by
// their underlying integer value.
type EnumEntry struct {
	api     vmbc.API
	handle  vmbc.Handle
	feature string

	name  string
	value int64
}

// Name returns the symbolic entry name.
func (e EnumEntry) Name() string { return e.name }

// Value returns the underlying integer value.
func (e EnumEntry) Value() int64 { return e.value }

func (e EnumEntry) String() string { return e.name }

// IsAvailable reports whether the entry can currently be set.
func (e EnumEntry) IsAvailable() (bool, error) {
	avail, err := e.api.FeatureEnumIsAvailable(e.handle, e.feature, e.name)
	return avail, wrapStatus(err)
}

// EnumFeature is the typed view of an enumeration feature.
type EnumFeature struct{ *Feature }

func (f *EnumFeature) entry(info vmbc.EnumEntryInfo) EnumEntry {
	return EnumEntry{api: f.api, handle: f.handle, feature: f.info.Name, name: info.Name, value: info.Value}
}

// AllEntries returns every entry of the enumeration, available or not.
func (f *EnumFeature) AllEntries() ([]EnumEntry, error) {
	if err := f.checkRead(); err != nil {
		return nil, err
	}

	infos, err := f.api.FeatureEnumRangeQuery(f.handle, f.info.Name)
	if err != nil {
		return nil, wrapStatus(err)
	}
	entries := make([]EnumEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, f.entry(info))
	}
	return entries, nil
}

// AvailableEntries returns the entries that can currently be set.
func (f *EnumFeature) AvailableEntries() ([]EnumEntry, error) {
	all, err := f.AllEntries()
	if err != nil {
		return nil, err
	}

	entries := make([]EnumEntry, 0, len(all))
	for _, e := range all {
		avail, err := e.IsAvailable()
		if err != nil {
			return nil, err
		}
		if avail {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// EntryByName returns the entry with the given symbolic name.
func (f *EnumFeature) EntryByName(name string) (EnumEntry, error) {
	all, err := f.AllEntries()
	if err != nil {
		return EnumEntry{}, err
	}
	for _, e := range all {
		if e.name == name {
			return e, nil
		}
	}
	return EnumEntry{}, fmt.Errorf("feature %q has no entry %q: %w", f.info.Name, name, ErrNotValid)
}

// EntryByValue returns the entry with the given integer value.
func (f *EnumFeature) EntryByValue(v int64) (EnumEntry, error) {
	all, err := f.AllEntries()
	if err != nil {
		return EnumEntry{}, err
	}
	for _, e := range all {
		if e.value == v {
			return e, nil
		}
	}
	return EnumEntry{}, fmt.Errorf("feature %q has no entry with value %d: %w", f.info.Name, v, ErrNotValid)
}

// Get returns the currently selected entry.
func (f *EnumFeature) Get() (EnumEntry, error) {
	if err := f.checkRead(); err != nil {
		return EnumEntry{}, err
	}

	name, err := f.api.FeatureEnumGet(f.handle, f.info.Name)
	if err != nil {
		return EnumEntry{}, wrapStatus(err)
	}
	return f.EntryByName(name)
}

// Set selects the given entry.
func (f *EnumFeature) Set(e EnumEntry) error {
	return f.SetByName(e.name)
}

// SetByName selects the entry with the given symbolic name.
func (f *EnumFeature) SetByName(name string) error {
	if err := f.checkWrite(); err != nil {
		return err
	}
	return wrapStatus(f.api.FeatureEnumSet(f.handle, f.info.Name, name))
}

// SetByValue selects the entry with the given integer value.
func (f *EnumFeature) SetByValue(v int64) error {
	e, err := f.EntryByValue(v)
	if err != nil {
		return err
	}
	return f.Set(e)
}

// CommandFeature is the typed view of a command feature.
type CommandFeature struct{ *Feature }

// Run executes the command.
func (f *CommandFeature) Run() error {
	if err := f.checkWrite(); err != nil {
		return err
	}
	return wrapStatus(f.api.FeatureCommandRun(f.handle, f.info.Name))
}

// IsDone reports whether a previously run command has completed.
func (f *CommandFeature) IsDone() (bool, error) {
	if err := f.checkRead(); err != nil {
		return false, err
	}
	done, err := f.api.FeatureCommandIsDone(f.handle, f.info.Name)
	return done, wrapStatus(err)
}

// RawFeature is the typed view of a raw register feature.
type RawFeature struct{ *Feature }

// Get returns a copy of the register content.
func (f *RawFeature) Get() ([]byte, error) {
	if err := f.checkRead(); err != nil {
		return nil, err
	}
	v, err := f.api.FeatureRawGet(f.handle, f.info.Name)
	return v, wrapStatus(err)
}

// Set writes the register content.
func (f *RawFeature) Set(v []byte) error {
	if err := f.checkWrite(); err != nil {
		return err
	}
	if len(v) == 0 {
		return fmt.Errorf("raw value is required: %w", ErrNotValid)
	}
	return wrapStatus(f.api.FeatureRawSet(f.handle, f.info.Name, v))
}

// Length returns the register length in bytes.
func (f *RawFeature) Length() (int, error) {
	if err := f.checkRead(); err != nil {
		return 0, err
	}
	n, err := f.api.FeatureRawLengthQuery(f.handle, f.info.Name)
	return n, wrapStatus(err)
}

// AsInt is a shorthand for the common lookup-then-view chain.
func AsInt(f *Feature, err error) (*IntFeature, error) {
	if err != nil {
		return nil, err
	}
	return f.Int()
}

// AsFloat is a shorthand for the common lookup-then-view chain.
func AsFloat(f *Feature, err error) (*FloatFeature, error) {
	if err != nil {
		return nil, err
	}
	return f.Float()
}

// AsBool is a shorthand for the common lookup-then-view chain.
func AsBool(f *Feature, err error) (*BoolFeature, error) {
	if err != nil {
		return nil, err
	}
	return f.Bool()
}

// AsEnum is a shorthand for the common lookup-then-view chain.
func AsEnum(f *Feature, err error) (*EnumFeature, error) {
	if err != nil {
		return nil, err
	}
	return f.Enum()
}

// AsString is a shorthand for the common lookup-then-view chain.
func AsString(f *Feature, err error) (*StringFeature, error) {
	if err != nil {
		return nil, err
	}
	return f.StringFeature()
}

// AsCommand is a shorthand for the common lookup-then-view chain.
func AsCommand(f *Feature, err error) (*CommandFeature, error) {
	if err != nil {
		return nil, err
	}
	return f.Command()
}
