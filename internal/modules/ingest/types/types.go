package types

import "time"

type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusMissing   Status = "MISSING"
)

// Measurement is one parsed observation line. Station comes from the file
// name, never from the line.
type Measurement struct {
	Sat       int     `json:"sat"`
	SatToken  string  `json:"satToken"`
	SatSystem string  `json:"satSystem"`
	CL        string  `json:"cl"`
	MJD       int     `json:"mjd"`
	STTime    string  `json:"sttime"`
	TRKL      int     `json:"trkl"`
	ELV       int     `json:"elv"`
	AZTH      int     `json:"azth"`
	REFSV     int64   `json:"refsv"`
	SRSV      int64   `json:"srsv"`
	REFSYS    int64   `json:"refsys"`
	SRSYS     int64   `json:"srsys"`
	DSG       int     `json:"dsg"`
	IOE       int     `json:"ioe"`
	MDTR      int     `json:"mdtr"`
	SMDT      int     `json:"smdt"`
	MDIO      int     `json:"mdio"`
	SMDI      int     `json:"smdi"`
	MSIO      int     `json:"msio"`
	SMSI      int     `json:"smsi"`
	ISG       int     `json:"isg"`
	FR        int     `json:"fr"`
	HC        int     `json:"hc"`
	FRC       string  `json:"frc"`
	CK        string  `json:"ck"`
	IonType   *string `json:"ionType,omitempty"`
	Source    string  `json:"source"`
}

// AvailabilityRecord is the per (station, day) availability state.
type AvailabilityRecord struct {
	Source           string     `json:"source"`
	MJD              int        `json:"mjd"`
	Status           Status     `json:"status"`
	FileName         *string    `json:"fileName,omitempty"`
	FileCreationTime *time.Time `json:"fileCreationTime,omitempty"`
	LastChecked      time.Time  `json:"lastChecked"`
}

type MeasurementFilter struct {
	Sources []string
	FromMJD *int
	ToMJD   *int
	Sat     *int
	Limit   int
	Offset  int
}

type AvailabilityFilter struct {
	Sources []string
	FromMJD int
	ToMJD   int
}

// AvailabilityEvent is published once per observed station after each pass.
type AvailabilityEvent struct {
	Station   string    `json:"station"`
	PassID    string    `json:"passId"`
	Day       int       `json:"day"`
	Available []int     `json:"available"`
	Missing   []int     `json:"missing"`
	CheckedAt time.Time `json:"checkedAt"`
}
