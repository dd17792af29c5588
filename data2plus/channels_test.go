package data2plus

import "testing"

func TestDecodeACFillsPhasesAndFrequency(t *testing.T) {
	records := []Record{
		{Header: RecordHeader{Idx: idxTotalPower}, R1: [5]uint32{0, 1234, 0, 0, 0}},
		{Header: RecordHeader{Idx: idxVoltagePhase1}, R1: [5]uint32{0, 23000, 0, 0, 0}},
		{Header: RecordHeader{Idx: idxVoltagePhase1 + 1}, R1: [5]uint32{0, 23010, 0, 0, 0}},
		{Header: RecordHeader{Idx: idxCurrentPhase1}, R1: [5]uint32{0, 5000, 0, 0, 0}},
		{Header: RecordHeader{Idx: idxFrequency}, R1: [5]uint32{0, 5000, 0, 0, 0}},
	}

	ac := decodeAC(records)
	if ac.TotalPower != 1234 {
		t.Errorf("TotalPower = %d, want 1234", ac.TotalPower)
	}
	if ac.Voltage[0] != 230000 {
		t.Errorf("Voltage[0] = %d, want 230000 mV", ac.Voltage[0])
	}
	if ac.Voltage[1] != 230100 {
		t.Errorf("Voltage[1] = %d, want 230100 mV", ac.Voltage[1])
	}
	if ac.Voltage[2] != InvalidS32 {
		t.Errorf("Voltage[2] = %d, want sentinel (untouched phase)", ac.Voltage[2])
	}
	if ac.Current[0] != 5000 {
		t.Errorf("Current[0] = %d, want 5000 mA", ac.Current[0])
	}
	if ac.Frequency != 50000 {
		t.Errorf("Frequency = %d, want 50000 mHz", ac.Frequency)
	}
	if ac.PhaseNum != 3 {
		t.Errorf("PhaseNum = %d, want 3", ac.PhaseNum)
	}
}

func TestDecodeACEmptyRecordsLeavesSentinels(t *testing.T) {
	ac := decodeAC(nil)
	if ac.TotalPower != InvalidS32 || ac.Frequency != InvalidS32 {
		t.Fatalf("decodeAC(nil) = %+v, want all sentinels", ac)
	}
	for i, v := range ac.Voltage {
		if v != InvalidS32 {
			t.Errorf("Voltage[%d] = %d, want sentinel", i, v)
		}
	}
}

func TestDecodeDCGrowsPerTracker(t *testing.T) {
	records := []Record{
		{Header: RecordHeader{Cnt: 1, Idx: idxDCPower}, R1: [5]uint32{0, 500, 0, 0, 0}},
		{Header: RecordHeader{Cnt: 2, Idx: idxDCPower}, R1: [5]uint32{0, 300, 0, 0, 0}},
		{Header: RecordHeader{Cnt: 1, Idx: idxDCVoltage}, R1: [5]uint32{0, 36000, 0, 0, 0}},
		{Header: RecordHeader{Cnt: 2, Idx: idxDCVoltage}, R1: [5]uint32{0, 35000, 0, 0, 0}},
	}

	dc := decodeDC(records)
	if dc.TrackerNum != 2 {
		t.Fatalf("TrackerNum = %d, want 2", dc.TrackerNum)
	}
	if dc.Power[0] != 500 || dc.Power[1] != 300 {
		t.Fatalf("Power = %v, want [500 300]", dc.Power)
	}
	if dc.TotalPower != 800 {
		t.Fatalf("TotalPower = %d, want 800", dc.TotalPower)
	}
}

func TestDecodeDCSkipsInvalidTrackerNumber(t *testing.T) {
	records := []Record{
		{Header: RecordHeader{Cnt: 0, Idx: idxDCPower}, R1: [5]uint32{0, 500, 0, 0, 0}},
	}
	dc := decodeDC(records)
	if dc.TrackerNum != 0 {
		t.Fatalf("TrackerNum = %d, want 0 (cnt=0 record should be skipped)", dc.TrackerNum)
	}
	if dc.TotalPower != InvalidS32 {
		t.Fatalf("TotalPower = %d, want sentinel (no valid tracker data)", dc.TotalPower)
	}
}

func TestDecodeStatsMapsEachCounter(t *testing.T) {
	records := []Record{
		{Header: RecordHeader{Idx: idxStatTotalYield}, R2: 123456},
		{Header: RecordHeader{Idx: idxStatDayYield}, R2: 789},
		{Header: RecordHeader{Idx: idxStatOperationTime}, R2: 3600},
		{Header: RecordHeader{Idx: idxStatFeedInTime}, R2: 1800},
	}
	stats := decodeStats(records)
	if stats.TotalYield != 123456 || stats.DayYield != 789 || stats.OperationTime != 3600 || stats.FeedInTime != 1800 {
		t.Fatalf("decodeStats() = %+v", stats)
	}
}

func TestDecodeStatsInvalidSampleBecomesSentinel(t *testing.T) {
	records := []Record{
		{Header: RecordHeader{Idx: idxStatTotalYield}, R2: InvalidU64},
	}
	stats := decodeStats(records)
	if stats.TotalYield != InvalidS64 {
		t.Fatalf("TotalYield = %d, want sentinel", stats.TotalYield)
	}
}

func TestDecodeStatusSelectsOKCode(t *testing.T) {
	r3 := [32]byte{}
	statusNumber := uint16(307)
	r3[0], r3[1], r3[2], r3[3] = byte(statusNumber), byte(statusNumber>>8), 0, 1
	r3[4], r3[5], r3[6], r3[7] = 0xFE, 0xFF, 0xFF, 0
	records := []Record{
		{Header: RecordHeader{Idx: idxDeviceStatus, Time: 1700000000}, R3: r3},
	}
	status := decodeStatus(records)
	if status.Status != StatusOK {
		t.Fatalf("Status = %v, want StatusOK", status.Status)
	}
	if status.Number != 307 {
		t.Fatalf("Number = %d, want 307", status.Number)
	}
}

func TestDecodeInverterInfoParsesNameAndFirmware(t *testing.T) {
	name := make([]byte, 32)
	copy(name, []byte("SN: 3000012345"))
	fw := make([]byte, 32)
	fw[16], fw[17], fw[18], fw[19] = 0, 3, 2, 1 // 1.02.03.N

	var r3Name, r3FW [32]byte
	copy(r3Name[:], name)
	copy(r3FW[:], fw)

	records := []Record{
		{Header: RecordHeader{Idx: idxDeviceName}, R3: r3Name},
		{Header: RecordHeader{Idx: idxDeviceSwVer}, R3: r3FW},
	}
	info := decodeInverterInfo(records)
	if info.Name != "SN: 3000012345" {
		t.Errorf("Name = %q, want %q", info.Name, "SN: 3000012345")
	}
	if info.FirmwareVersion != "1.02.03.N" {
		t.Errorf("FirmwareVersion = %q, want 1.02.03.N", info.FirmwareVersion)
	}
	if info.Manufacturer != "SMA" {
		t.Errorf("Manufacturer = %q, want SMA", info.Manufacturer)
	}
}
