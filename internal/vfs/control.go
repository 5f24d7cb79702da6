package vfs

// Reserved control file names. Only exact matches carry a command.
const (
	ControlNext = " next"
	ControlPrev = " prev"
)

// controlNames is the order in which control files are listed.
var controlNames = []string{ControlPrev, ControlNext}

// controlScript is returned by every control file read so that a caller
// executing the file sees a well-formed, empty shell script. The actual
// command already ran as a side effect of the read.
var controlScript = []byte("#!/bin/sh\n")

// ParseCommand maps a control file name to the pagination direction it
// requests. Unknown control names are accepted and request a neutral
// refresh.
func ParseCommand(name string) Direction {
	switch name {
	case ControlNext:
		return DirectionForward
	case ControlPrev:
		return DirectionBackward
	default:
		return DirectionNeutral
	}
}

// ControlScriptSize is the size reported for every control file.
func ControlScriptSize() int64 {
	return int64(len(controlScript))
}

// controlContent clips the placeholder script to [offset, offset+length).
func controlContent(offset int64, length int) []byte {
	size := int64(len(controlScript))
	if offset < 0 || offset >= size || length <= 0 {
		return []byte{}
	}
	end := offset + int64(length)
	if end > size {
		end = size
	}
	out := make([]byte, end-offset)
	copy(out, controlScript[offset:end])
	return out
}
