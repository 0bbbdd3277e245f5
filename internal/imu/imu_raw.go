package imu

// IMURaw represents a single raw accelerometer + gyroscope sample in
// sensor counts.
type IMURaw struct {
	Source string `json:"source"`
	Micros uint64 `json:"micros"`

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

// IMURawSource is anything that can be sampled for raw IMU data.
type IMURawSource interface {
	ReadRaw() (IMURaw, error)
}
