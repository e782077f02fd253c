package models

// Device is the identity and metadata record for one unit, as reported by
// the vendor device list. Created on the first list fetch and never removed
// during a session; a unit going offline just flips Online.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	MAC      string `json:"mac"`
	AuthCode string `json:"auth_code"`
	ClassID  string `json:"class_id"`
	Online   bool   `json:"online"`
}

// DeviceInfo is one record of the vendor device list response.
type DeviceInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DeviceType   string `json:"deviceType"`
	MAC          string `json:"mac"`
	AuthCode     string `json:"authCode"`
	ClassID      string `json:"classID"`
	OnlineMarker string `json:"online"`
}

// ApplyInfo overwrites identity/metadata fields from a device list record.
// Online is "1" for online, anything else means offline.
func (d *Device) ApplyInfo(info DeviceInfo) {
	if info.Name != "" {
		d.Name = info.Name
	}
	if info.DeviceType != "" {
		d.Type = info.DeviceType
	}
	if info.MAC != "" {
		d.MAC = info.MAC
	}
	if info.AuthCode != "" {
		d.AuthCode = info.AuthCode
	}
	if info.ClassID != "" {
		d.ClassID = info.ClassID
	}
	d.Online = info.OnlineMarker == "1"
}
