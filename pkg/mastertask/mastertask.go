// Package mastertask implements the concrete master task state machines of
// §4.F: integrity poll, event scan, time sync, restart, command
// (direct-operate / select-before-operate), and the three file-transfer
// tasks (read, write, directory listing). Each type implements
// sched.Task.
//
// Grounded on the teacher's pkg/sdo package for its explicit state-field
// plus one-method-per-message-type shape (sdo.BlockDownloader's
// rxDownloadBlockInitiate/rxDownloadBlockSubBlock handlers), generalized
// here from SDO sub-block transfer states to DNP3 task phases.
package mastertask

import (
	"fmt"

	"github.com/kjheidel/godnp3/pkg/object"
)

// decodeHeaderObject parses the single leading object header off objects
// and returns the header plus the object payload bytes that follow it —
// the common first step of every task's ProcessResponse.
func decodeHeaderObject(objects []byte) (object.Header, []byte, error) {
	h, rest, err := object.ParseHeader(objects)
	if err != nil {
		return object.Header{}, nil, fmt.Errorf("mastertask: parsing response header: %w", err)
	}
	return h, rest, nil
}
