package bacnet

import "testing"

func TestDateRoundTrip(t *testing.T) {
	cases := []Date{
		{Year: 2024, Month: 3, Day: 15, DayOfWeek: 5},
		{Year: -1, Month: dateUnspecified, Day: dateUnspecified, DayOfWeek: dateUnspecified},
	}
	for _, d := range cases {
		got, err := DecodeDate(EncodeDate(d))
		if err != nil {
			t.Fatalf("DecodeDate: %v", err)
		}
		if got != d {
			t.Errorf("round trip mismatch: got %+v want %+v", got, d)
		}
	}
}

func TestDateStringUnspecified(t *testing.T) {
	d := Date{Year: -1}
	if d.String() != "unspecified-date" {
		t.Errorf("got %q", d.String())
	}
}

func TestTimeRoundTrip(t *testing.T) {
	tm := Time{Hour: 13, Minute: 45, Second: 30, Hundredths: 50}
	got, err := DecodeTime(EncodeTime(tm))
	if err != nil {
		t.Fatalf("DecodeTime: %v", err)
	}
	if got != tm {
		t.Errorf("got %+v want %+v", got, tm)
	}
}

func TestBitStringRoundTrip(t *testing.T) {
	cases := [][]bool{
		{true, false, true},
		{},
		{true, true, true, true, true, true, true, true, false},
	}
	for _, bits := range cases {
		bs := NewBitString(bits...)
		got, err := DecodeBitString(bs.Encode())
		if err != nil {
			t.Fatalf("DecodeBitString: %v", err)
		}
		if len(got.Bits) != len(bits) {
			t.Fatalf("length mismatch: got %d want %d", len(got.Bits), len(bits))
		}
		for i := range bits {
			if got.Bit(i) != bits[i] {
				t.Errorf("bit %d: got %v want %v", i, got.Bit(i), bits[i])
			}
		}
	}
}

func TestEncodeStatusFlags(t *testing.T) {
	sf := StatusFlags{InAlarm: true, Fault: false, Overridden: true, OutOfService: false}
	bs := EncodeStatusFlags(sf)
	if !bs.Bit(0) || bs.Bit(1) || !bs.Bit(2) || bs.Bit(3) {
		t.Errorf("unexpected status flags encoding: %+v", bs.Bits)
	}
}
