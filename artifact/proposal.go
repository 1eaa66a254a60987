package artifact

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/prospectmesh/core"
)

// icsSuffix marks the attachment stored next to a proposal.
const icsSuffix = ".ics"

// SaveProposal encodes p and stores it under its key. A non-empty ICS is
// stored as a separate attachment.
func SaveProposal(store core.ProposalStore, prospectID string, p core.Proposal) error {
	if p.Key == "" {
		return fmt.Errorf("proposal key is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode proposal %s: %w", p.Key, err)
	}
	if err := store.Save(prospectID, p.Key, data); err != nil {
		return err
	}
	if p.ICS != "" {
		return store.Save(prospectID, p.Key+icsSuffix, []byte(p.ICS))
	}
	return nil
}

// LoadProposal returns the proposal stored under key. The boolean is false
// when none exists.
func LoadProposal(store core.ProposalStore, prospectID, key string) (*core.Proposal, bool, error) {
	data, err := store.Get(prospectID, key)
	if errors.Is(err, core.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var p core.Proposal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("failed to decode proposal %s: %w", key, err)
	}
	return &p, true, nil
}

// Attachment returns the ICS stored with the proposal under key.
func Attachment(store core.ProposalStore, prospectID, key string) (string, error) {
	data, err := store.Get(prospectID, key+icsSuffix)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
