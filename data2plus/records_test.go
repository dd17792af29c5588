package data2plus

import "testing"

func buildRecordHeader(cnt uint8, idx uint16, typ uint8, tm uint32) []byte {
	return []byte{
		cnt,
		byte(idx), byte(idx >> 8),
		typ,
		byte(tm), byte(tm >> 8), byte(tm >> 16), byte(tm >> 24),
	}
}

func TestParseChannelRecordsRecord1(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x3F, 0x26, 0, 0, 0, 0, 0, 0, 0, 0}
	buf = append(buf, buildRecordHeader(0, idxTotalPower, 0, 0)...)
	buf = append(buf, 0, 0, 0, 0) // value1
	buf = append(buf, 0xD2, 0x04, 0, 0) // value2 = 1234
	buf = append(buf, 0, 0, 0, 0) // value3
	buf = append(buf, 0, 0, 0, 0) // value4
	buf = append(buf, 0, 0, 0, 0) // unknown

	records, err := parseChannelRecords(buf, idxTotalPower, Record1, 20)
	if err != nil {
		t.Fatalf("parseChannelRecords() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].R1[1] != 1234 {
		t.Fatalf("value2 = %d, want 1234", records[0].R1[1])
	}
}

func TestParseChannelRecordsRejectsObjectMismatch(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x00, 0x00, 0, 0, 0, 0, 0, 0, 0, 0}
	if _, err := parseChannelRecords(buf, 0x1234, Record1, 1); err == nil {
		t.Fatal("parseChannelRecords() with mismatched object succeeded, want error")
	}
}

func TestParseChannelRecordsRejectsBadPreamble(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x00, 0x00, 0, 0, 0, 0, 0, 0, 0, 0}
	if _, err := parseChannelRecords(buf, 0, Record1, 1); err == nil {
		t.Fatal("parseChannelRecords() with bad preamble succeeded, want error")
	}
}

func TestParseAttributesStopsAtTerminator(t *testing.T) {
	data := make([]byte, 32)
	// first entry: code 307 selected
	data[0], data[1], data[2], data[3] = 307&0xFF, (307>>8)&0xFF, 0, 1
	// terminator
	data[4], data[5], data[6], data[7] = 0xFE, 0xFF, 0xFF, 0

	attrs := parseAttributes(data, 8)
	if len(attrs) != 1 {
		t.Fatalf("got %d attributes, want 1", len(attrs))
	}
	if attrs[0].Code != 307 || !attrs[0].Selected {
		t.Fatalf("attrs[0] = %+v", attrs[0])
	}
}

func TestStatusFromCodeIsTotal(t *testing.T) {
	testCases := []struct {
		code uint32
		want StatusCode
	}{
		{307, StatusOK},
		{35, StatusError},
		{303, StatusOff},
		{455, StatusWarning},
		{9999, StatusUnknown},
	}
	for _, tc := range testCases {
		if got := statusFromCode(tc.code); got != tc.want {
			t.Errorf("statusFromCode(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestParseFirmwareVersion(t *testing.T) {
	testCases := []struct {
		name    string
		data    []byte
		want    string
		wantErr bool
	}{
		{"normal release", fwBytes(0, 3, 2, 1), "1.02.03.N", false},
		{"engineering", fwBytes(1, 0, 0, 5), "5.00.00.E", false},
		{"numeric release type", fwBytes(9, 1, 1, 1), "1.01.01.09", false},
		{"byte18 too large", fwBytes(0, 0, 10, 1), "", true},
		{"byte19 too large", fwBytes(0, 0, 0, 10), "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseFirmwareVersion(tc.data)
			if tc.wantErr {
				if err == nil {
					t.Fatal("parseFirmwareVersion() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFirmwareVersion() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("parseFirmwareVersion() = %q, want %q", got, tc.want)
			}
		})
	}
}

func fwBytes(releaseType, b17, b18, b19 byte) []byte {
	data := make([]byte, 20)
	data[16] = releaseType
	data[17] = b17
	data[18] = b18
	data[19] = b19
	return data
}
