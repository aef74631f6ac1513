package registry

import "time"

// VoiceModel is a cloned voice: the uploaded reference sample and the speaker
// embedding extracted from it.
type VoiceModel struct {
	ID          string    `gorm:"primaryKey;type:text" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Description *string   `gorm:"type:text" json:"description"`
	FilePath    string    `gorm:"not null" json:"file_path"`
	SEFilePath  string    `gorm:"column:se_file_path;not null" json:"se_file_path"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

// TableName pins the table name.
func (VoiceModel) TableName() string {
	return "voice_models"
}

// GeneratedAudio records one synthesis: which voice spoke what, and where the output
// landed.
type GeneratedAudio struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	VoiceID   string    `gorm:"not null;index" json:"voice_id"`
	Text      string    `gorm:"not null" json:"text"`
	FilePath  string    `gorm:"not null" json:"file_path"`
	Accent    string    `json:"accent"`
	Speed     float64   `json:"speed"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName pins the table name.
func (GeneratedAudio) TableName() string {
	return "generated_audio"
}

// HistoryEntry is a generated audio record joined with the name of its voice.
type HistoryEntry struct {
	AudioID   string    `json:"audio_id"`
	VoiceID   string    `json:"voice_id"`
	VoiceName string    `json:"voice_name"`
	Text      string    `json:"text"`
	Accent    string    `json:"accent"`
	Speed     float64   `json:"speed"`
	CreatedAt time.Time `json:"created_at"`
}
