package session

import (
	"fmt"
	"io"

	"vcl/adif"
	"vcl/cabrillo"
)

// WriteCabrillo writes the log as a Cabrillo submission in list order,
// claiming the current score when one can be computed.
func (s *Session) WriteCabrillo(w io.Writer, createdBy string) error {
	s.mu.Lock()
	hdr := cabrillo.Header{
		Station:   s.opts.Station,
		Contest:   s.opts.Contest.Name,
		CreatedBy: createdBy,
	}
	if s.scoreErr == nil {
		claimed := s.summary.Score
		hdr.ClaimedScore = &claimed
	}
	contacts := append(s.contacts[:0:0], s.contacts...)
	s.mu.Unlock()
	return cabrillo.Write(w, hdr, contacts)
}

// WriteADIF writes the log as an ADIF file.
func (s *Session) WriteADIF(w io.Writer, programID string) (int, error) {
	contacts := s.Contacts()
	aw := adif.NewWriter(w)
	header := adif.Record{}
	header.Set("adif_ver", "3.1.4")
	header.Set("programid", programID)
	if err := aw.WriteHeader(fmt.Sprintf("%s export, %d contacts", programID, len(contacts)), header); err != nil {
		return 0, err
	}
	for _, c := range contacts {
		rec, err := adif.FromContact(c)
		if err != nil {
			return aw.Count(), fmt.Errorf("adif export %s: %w", c, err)
		}
		if err := aw.Write(rec); err != nil {
			return aw.Count(), err
		}
	}
	return aw.Count(), aw.Flush()
}
