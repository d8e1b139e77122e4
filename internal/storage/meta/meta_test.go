package meta

import (
	"testing"

	"github.com/xtxerr/beamstore/internal/errors"
)

func testFields() Fields {
	return Fields{
		FieldTimestamp: Float(1700000000.5),
		FieldDateTime:  String("20231114_10400"),
		FieldTileID:    Int(3),
		FieldNSamples:  Int(1024),
		FieldNBlocks:   Int(2),
		FieldType:      String("channel"),
		FieldDataType:  String("complex"),
		FieldTsStart:   Float(1700000000.5),
		FieldTsEnd:     Float(1700000001.0),
	}
}

func TestEncodeDecode(t *testing.T) {
	f := testFields()

	decoded, err := Decode(Encode(f))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != len(f) {
		t.Fatalf("got %d fields, want %d", len(decoded), len(f))
	}
	for name, want := range f {
		got, ok := decoded[name]
		if !ok {
			t.Errorf("field %s missing after round trip", name)
			continue
		}
		if got != want {
			t.Errorf("field %s = %+v, want %+v", name, got, want)
		}
	}
}

func TestEncodeDeterministic(t *testing.T) {
	f := testFields()
	a := Encode(f)
	b := Encode(f)
	if string(a) != string(b) {
		t.Error("encoding is not deterministic")
	}
}

func TestAccessors(t *testing.T) {
	f := testFields()

	if v, err := f.Float(FieldTsEnd); err != nil || v != 1700000001.0 {
		t.Errorf("Float(ts_end) = %v, %v", v, err)
	}
	if v, err := f.Int(FieldNSamples); err != nil || v != 1024 {
		t.Errorf("Int(n_samples) = %v, %v", v, err)
	}
	if v, err := f.Str(FieldType); err != nil || v != "channel" {
		t.Errorf("Str(type) = %v, %v", v, err)
	}
	// Integer fields are readable as floats.
	if v, err := f.Float(FieldNSamples); err != nil || v != 1024 {
		t.Errorf("Float(n_samples) = %v, %v", v, err)
	}
	if _, err := f.Float("absent"); !errors.IsIntegrity(err) {
		t.Errorf("missing field: got %v, want ErrIntegrity", err)
	}
}

func TestCheckIntegrity(t *testing.T) {
	f := testFields()
	required := []string{
		FieldTimestamp, FieldDateTime, FieldTileID, FieldNSamples,
		FieldNBlocks, FieldType, FieldDataType, FieldTsStart, FieldTsEnd,
	}

	if err := CheckIntegrity(f, required); err != nil {
		t.Errorf("complete record failed integrity: %v", err)
	}

	delete(f, FieldNBlocks)
	err := CheckIntegrity(f, required)
	if !errors.IsIntegrity(err) {
		t.Errorf("got %v, want ErrIntegrity", err)
	}
}

func TestTsampExempt(t *testing.T) {
	f := testFields()
	required := []string{FieldTimestamp, FieldTsamp}

	// tsamp may be absent without failing integrity.
	if err := CheckIntegrity(f, required); err != nil {
		t.Errorf("absent tsamp failed integrity: %v", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	payload := Encode(testFields())
	for _, cut := range []int{3, 5, 10, len(payload) - 1} {
		if _, err := Decode(payload[:cut]); err == nil {
			t.Errorf("truncation at %d not detected", cut)
		}
	}
}
