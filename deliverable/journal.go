package deliverable

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ValidateID checks the 1..MaxIDLength byte bound.
func ValidateID(deliverableID string) error {
	if len(deliverableID) == 0 || len(deliverableID) > MaxIDLength {
		return ErrInvalidIDLength
	}
	return nil
}

// Len returns the number of retained deliverables.
func (j *Journal) Len() int { return j.Count }

// Latest returns the id of the most recently added deliverable.
func (j *Journal) Latest() (string, bool) {
	if j.Count == 0 {
		return "", false
	}
	return j.Ring[(j.Head+j.Count-1)%Capacity], true
}

// Add appends a deliverable. When the ring is full the oldest entry is
// evicted from both the ring and the record map, and its id is returned.
func (j *Journal) Add(deliverableID string, contentHash common.Hash, now time.Time) (evicted string, err error) {
	if err := ValidateID(deliverableID); err != nil {
		return "", err
	}
	if _, ok := j.Records[deliverableID]; ok {
		return "", ErrAlreadyExists
	}
	if latest, ok := j.Latest(); ok && !j.Records[latest].Acknowledged {
		return "", ErrPreviousNotAcknowledged
	}

	if j.Records == nil {
		j.Records = make(map[string]Deliverable, Capacity)
	}

	if j.Count < Capacity {
		j.Ring[(j.Head+j.Count)%Capacity] = deliverableID
		j.Count++
	} else {
		evicted = j.Ring[j.Head]
		delete(j.Records, evicted)
		j.Ring[j.Head] = deliverableID
		j.Head = (j.Head + 1) % Capacity
	}

	j.Records[deliverableID] = Deliverable{
		ID:          deliverableID,
		ContentHash: contentHash,
		Timestamp:   now.UTC(),
	}
	return evicted, nil
}

// Get returns a copy of the record for deliverableID.
func (j *Journal) Get(deliverableID string) (Deliverable, error) {
	d, ok := j.Records[deliverableID]
	if !ok {
		return Deliverable{}, ErrNotFound
	}
	return cloneDeliverable(d), nil
}

// Acknowledge marks a deliverable as accepted by the consumer.
// Settled deliverables cannot be acknowledged again.
func (j *Journal) Acknowledge(deliverableID string) error {
	d, ok := j.Records[deliverableID]
	if !ok {
		return ErrNotFound
	}
	if d.Settled {
		return ErrAlreadySettled
	}
	d.Acknowledged = true
	j.Records[deliverableID] = d
	return nil
}

// Settle marks an acknowledged deliverable as settled and stores its
// encrypted payload.
func (j *Journal) Settle(deliverableID string, encryptedPayload []byte) error {
	d, ok := j.Records[deliverableID]
	if !ok {
		return ErrNotFound
	}
	if d.Settled {
		return ErrAlreadySettled
	}
	if !d.Acknowledged {
		return ErrNotAcknowledged
	}
	d.Settled = true
	d.EncryptedPayload = append([]byte(nil), encryptedPayload...)
	j.Records[deliverableID] = d
	return nil
}

// IDs returns the retained ids oldest first.
func (j *Journal) IDs() []string {
	out := make([]string, 0, j.Count)
	start := 0
	if j.Count == Capacity {
		start = j.Head
	}
	for i := 0; i < j.Count; i++ {
		out = append(out, j.Ring[(start+i)%Capacity])
	}
	return out
}

// List returns copies of the retained deliverables oldest first.
func (j *Journal) List() []Deliverable {
	ids := j.IDs()
	out := make([]Deliverable, 0, len(ids))
	for _, deliverableID := range ids {
		out = append(out, cloneDeliverable(j.Records[deliverableID]))
	}
	return out
}

// Reset clears the journal. Record entries are deleted one by one for every
// live id before the ring metadata is cleared, since resetting Head and
// Count alone would leave them reachable through the map.
func (j *Journal) Reset() {
	for _, deliverableID := range j.IDs() {
		delete(j.Records, deliverableID)
	}
	j.Ring = [Capacity]string{}
	j.Head = 0
	j.Count = 0
}

// Clone returns a deep copy.
func (j Journal) Clone() Journal {
	out := j
	if j.Records != nil {
		out.Records = make(map[string]Deliverable, len(j.Records))
		for k, v := range j.Records {
			out.Records[k] = cloneDeliverable(v)
		}
	}
	return out
}

// Validate checks the journal invariants: bounds, map/ring agreement, and
// that only the latest entry may be unacknowledged.
func (j *Journal) Validate() error {
	if j.Count < 0 || j.Count > Capacity {
		return fmt.Errorf("deliverable: count %d outside [0, %d]", j.Count, Capacity)
	}
	if j.Head < 0 || j.Head >= Capacity {
		return fmt.Errorf("deliverable: head %d outside [0, %d)", j.Head, Capacity)
	}
	if j.Count < Capacity && j.Head != 0 {
		return fmt.Errorf("deliverable: head %d must be 0 until the ring is full", j.Head)
	}
	if len(j.Records) != j.Count {
		return fmt.Errorf("deliverable: %d records for %d ring entries", len(j.Records), j.Count)
	}
	ids := j.IDs()
	for i, deliverableID := range ids {
		d, ok := j.Records[deliverableID]
		if !ok {
			return fmt.Errorf("deliverable: ring entry %q has no record", deliverableID)
		}
		if i < len(ids)-1 && !d.Acknowledged {
			return fmt.Errorf("deliverable: %q is unacknowledged but not the latest", deliverableID)
		}
	}
	return nil
}

func cloneDeliverable(d Deliverable) Deliverable {
	if d.EncryptedPayload != nil {
		d.EncryptedPayload = append([]byte(nil), d.EncryptedPayload...)
	}
	return d
}
