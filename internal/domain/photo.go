package domain

const (
	// CanonicalExt расширение, в котором хранятся все фотографии
	CanonicalExt         = ".webp"
	CanonicalContentType = "image/webp"
)

type Photo struct {
	Id           int64  `json:"id"`
	IsHorizontal bool   `json:"is_horizontal"`
	PhotoURL     string `json:"photo_url"`
	Name         string `json:"name"`
}

// NormalizedImage is the output of the image pipeline, ready to be stored.
type NormalizedImage struct {
	Data         []byte
	Key          string
	IsHorizontal bool
	// Rewritten is false when Data are the input bytes unchanged.
	Rewritten bool
}

// RepairTask - сообщение брокера для пересчёта ориентации одной фотографии
type RepairTask struct {
	PhotoID   int64 `json:"photo_id"`
	Timestamp int64 `json:"timestamp"`
}

// RepairResult describes what the orientation repair did to one photo.
type RepairResult struct {
	PhotoID      int64  `json:"photo_id"`
	Rewritten    bool   `json:"rewritten"`
	Flipped      bool   `json:"flipped"`
	IsHorizontal bool   `json:"is_horizontal"`
	Error        string `json:"error,omitempty"`
}

// UploadResult is the per-file outcome of a batch upload.
type UploadResult struct {
	Filename string `json:"filename"`
	Photo    *Photo `json:"photo,omitempty"`
	Error    string `json:"error,omitempty"`
}

type UploadFile struct {
	Filename string
	Data     []byte
}

// RepairReport is returned by a repair pass. Queued counts published tasks,
// Results is filled when the pass ran inline.
type RepairReport struct {
	Queued  int            `json:"queued"`
	Results []RepairResult `json:"results,omitempty"`
}
