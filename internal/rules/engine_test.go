package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// recordingSource counts lookups per field so tests can prove the
// engine never touched a condition past a short-circuit point.
type recordingSource struct {
	fields  FieldMap
	lookups map[string]int
}

func newRecordingSource(fields FieldMap) *recordingSource {
	return &recordingSource{
		fields:  fields,
		lookups: make(map[string]int),
	}
}

func (s *recordingSource) Field(name string) (Value, bool) {
	s.lookups[name]++
	v, ok := s.fields[name]
	return v, ok
}

func TestEvaluateEmptyConditionsMatchesAnyContext(t *testing.T) {
	contexts := []FieldSource{
		FieldMap{},
		FieldMap{}.SetString("weather_signal", "HEAT_WAVE_ALERT"),
		FieldMap{}.SetNumber("temperature", -40),
	}

	for _, logic := range []Logic{LogicAnd, LogicOr, ""} {
		for _, src := range contexts {
			assert.True(t, Evaluate(Definition{Logic: logic}, src))
		}
	}
}

func TestEvaluateMissingFieldFailsCondition(t *testing.T) {
	def := Definition{
		Logic: LogicAnd,
		Conditions: []Condition{
			{Field: "nonexistent", Operator: OperatorEquals, Value: "x"},
		},
	}

	assert.False(t, Evaluate(def, FieldMap{}))

	// An AND rule containing a missing field never matches, even when
	// the other conditions hold.
	def.Conditions = append(def.Conditions, Condition{
		Field: "crop_type", Operator: OperatorEquals, Value: "WHEAT",
	})
	src := FieldMap{}.SetString("crop_type", "WHEAT")
	assert.False(t, Evaluate(def, src))
}

func TestEvaluateAndShortCircuits(t *testing.T) {
	src := newRecordingSource(FieldMap{}.SetString("first", "no"))

	def := Definition{
		Logic: LogicAnd,
		Conditions: []Condition{
			{Field: "first", Operator: OperatorEquals, Value: "yes"},
			{Field: "second", Operator: OperatorEquals, Value: "anything"},
		},
	}

	assert.False(t, Evaluate(def, src))
	assert.Equal(t, 1, src.lookups["first"])
	assert.Zero(t, src.lookups["second"], "second condition must not be evaluated")
}

func TestEvaluateOrShortCircuits(t *testing.T) {
	src := newRecordingSource(FieldMap{}.SetString("first", "yes"))

	def := Definition{
		Logic: LogicOr,
		Conditions: []Condition{
			{Field: "first", Operator: OperatorEquals, Value: "yes"},
			{Field: "second", Operator: OperatorEquals, Value: "anything"},
		},
	}

	assert.True(t, Evaluate(def, src))
	assert.Equal(t, 1, src.lookups["first"])
	assert.Zero(t, src.lookups["second"], "second condition must not be evaluated")
}

func TestEvaluateOperators(t *testing.T) {
	src := FieldMap{}.
		SetString("crop_type", "WHEAT").
		SetNumber("temperature", 43.5).
		SetString("temperature_str", "43.5").
		SetString("district", "Pune West").
		SetBool("monsoon", true).
		SetString("code", "b")

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals match", Condition{Field: "crop_type", Operator: OperatorEquals, Value: "WHEAT"}, true},
		{"equals mismatch", Condition{Field: "crop_type", Operator: OperatorEquals, Value: "RICE"}, false},
		{"equals coerces bool", Condition{Field: "monsoon", Operator: OperatorEquals, Value: "true"}, true},
		{"equals coerces number", Condition{Field: "temperature", Operator: OperatorEquals, Value: "43.5"}, true},
		{"gt numeric", Condition{Field: "temperature", Operator: OperatorGT, Value: "40"}, true},
		{"gt numeric false", Condition{Field: "temperature", Operator: OperatorGT, Value: "50"}, false},
		{"gt parses string field", Condition{Field: "temperature_str", Operator: OperatorGT, Value: "40"}, true},
		{"gte boundary", Condition{Field: "temperature", Operator: OperatorGTE, Value: "43.5"}, true},
		{"lt numeric", Condition{Field: "temperature", Operator: OperatorLT, Value: "44"}, true},
		{"lte boundary", Condition{Field: "temperature", Operator: OperatorLTE, Value: "43.5"}, true},
		{"lexicographic fallback", Condition{Field: "code", Operator: OperatorGT, Value: "a"}, true},
		{"lexicographic fallback false", Condition{Field: "code", Operator: OperatorLT, Value: "a"}, false},
		{"contains", Condition{Field: "district", Operator: OperatorContains, Value: "Pune"}, true},
		{"contains miss", Condition{Field: "district", Operator: OperatorContains, Value: "Nashik"}, false},
		{"in membership via values", Condition{Field: "crop_type", Operator: OperatorIn, Values: []string{"RICE", "WHEAT"}}, true},
		{"in membership via csv", Condition{Field: "crop_type", Operator: OperatorIn, Value: "RICE, WHEAT"}, true},
		{"in miss", Condition{Field: "crop_type", Operator: OperatorIn, Value: "RICE,MAIZE"}, false},
		{"in is not substring containment", Condition{Field: "crop_type", Operator: OperatorIn, Value: "WHEATGRASS"}, false},
		{"unknown operator fails closed", Condition{Field: "crop_type", Operator: "LIKE", Value: "W%"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := Definition{Logic: LogicAnd, Conditions: []Condition{tt.cond}}
			assert.Equal(t, tt.want, Evaluate(def, src))
		})
	}
}

func TestEvaluateHeatWaveWheatFloweringScenario(t *testing.T) {
	def := Definition{
		Logic: LogicAnd,
		Conditions: []Condition{
			{Field: "weather_signal", Operator: OperatorEquals, Value: "HEAT_WAVE_ALERT"},
			{Field: "crop_type", Operator: OperatorEquals, Value: "WHEAT"},
			{Field: "growth_stage", Operator: OperatorEquals, Value: "FLOWERING"},
		},
	}

	flowering := FieldMap{}.
		SetString("weather_signal", "HEAT_WAVE_ALERT").
		SetString("crop_type", "WHEAT").
		SetString("growth_stage", "FLOWERING")
	assert.True(t, Evaluate(def, flowering))

	// Same context at seedling stage: the AND chain stops at the third
	// condition and the rule does not match.
	seedling := newRecordingSource(FieldMap{}.
		SetString("weather_signal", "HEAT_WAVE_ALERT").
		SetString("crop_type", "WHEAT").
		SetString("growth_stage", "SEEDLING"))
	assert.False(t, Evaluate(def, seedling))
	assert.Equal(t, 1, seedling.lookups["growth_stage"])
}

func TestFieldMapFrom(t *testing.T) {
	m := FieldMapFrom(map[string]interface{}{
		"name":    "wheat",
		"temp":    42.5,
		"count":   3,
		"wet":     true,
		"tags":    []interface{}{"a", "b"},
		"strange": struct{ X int }{X: 1},
	})

	v, ok := m.Field("name")
	assert.True(t, ok)
	assert.Equal(t, KindString, v.Kind())

	v, _ = m.Field("temp")
	n, numOK := v.AsNumber()
	assert.True(t, numOK)
	assert.Equal(t, 42.5, n)

	v, _ = m.Field("count")
	n, _ = v.AsNumber()
	assert.Equal(t, float64(3), n)

	v, _ = m.Field("tags")
	list, listOK := v.AsList()
	assert.True(t, listOK)
	assert.Equal(t, []string{"a", "b"}, list)

	v, _ = m.Field("strange")
	assert.Equal(t, KindString, v.Kind())
}
