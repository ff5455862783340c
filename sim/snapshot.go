package sim

import (
	"math"

	"github.com/aroellin/rstisim/sim/dist"
)

// PersonRow is one person in a population snapshot. Nil fields are not
// available for the person: ad hoc ids exist only for live persons, and the
// pregnancy columns only for the sex they apply to.
type PersonRow struct {
	PUID    int64
	AdhocID *int
	Type    int
	Bin     int // linearised over all person types
	Birth   float64
	Death   float64

	CurrentPartners int
	TotalPartners   int
	WithinPartners  int
	Contacts        int
	ContactsUnprot  int

	Pregnant    *int
	Pregnancies *int
	Abortions   *int
	Children    *int

	CurrentInfections int
	TotalInfections   int
	WithinInfections  int

	Treatments    int
	Visits        int
	Notifications int
}

// PartnershipRow is one partnership in a snapshot.
type PartnershipRow struct {
	PSUID          int64
	AdhocID1       *int
	AdhocID2       *int
	PUID1          int64
	PUID2          int64
	Type           int
	Bin            int
	FormerType     int
	Begin          float64
	End            float64
	Fitness        float64
	Tries          int
	Contacts       int
	ContactsUnprot int
}

// InfectionRow is one infection in a snapshot. EndInfection and Death are
// nil when they do not happen before the host dies.
type InfectionRow struct {
	InfUID       int64
	StrainID     int64
	ParentInfUID *int64
	HostPUID     int64
	HostAdhocID  *int
	Type         int
	Bin          int // linearised over all infection types
	Birth        float64
	EndInfection *float64
	Death        *float64
	PSUID        *int64
}

// adhocIDs numbers the live persons 1..n in population order.
func (s *Simulator) adhocIDs() map[*Person]int {
	ids := make(map[*Person]int, s.pop.Size())
	i := 0
	for p := range s.pop.active.all() {
		i++
		ids[p] = i
	}
	return ids
}

func adhocOf(ids map[*Person]int, p *Person) *int {
	if id, ok := ids[p]; ok {
		return &id
	}
	return nil
}

func (s *Simulator) people(old bool) []*Person {
	if old {
		return s.pop.dead.slice()
	}
	return s.pop.active.slice()
}

func intPtr(v int) *int { return &v }

// SnapshotPeople returns the live persons, or the dead ones with old.
func (s *Simulator) SnapshotPeople(old bool) ([]PersonRow, error) {
	if s.closed {
		return nil, ErrClosed
	}
	ids := s.adhocIDs()
	people := s.people(old)
	rows := make([]PersonRow, 0, len(people))
	for _, p := range people {
		within, err := p.Number(dist.WithinPartners)
		if err != nil {
			return nil, err
		}
		withinInf, err := p.Number(dist.WithinInfections)
		if err != nil {
			return nil, err
		}
		row := PersonRow{
			PUID:              p.id,
			AdhocID:           adhocOf(ids, p),
			Type:              p.Type(),
			Bin:               p.BinLinearised(),
			Birth:             p.birth,
			Death:             p.death,
			CurrentPartners:   p.partnersCurrent,
			TotalPartners:     p.partnersTotal,
			WithinPartners:    within,
			Contacts:          p.contacts,
			ContactsUnprot:    p.contactsUnprot,
			CurrentInfections: p.infectionsCurrent,
			TotalInfections:   p.infectionsTotal,
			WithinInfections:  withinInf,
			Treatments:        p.treatments,
			Visits:            p.visits,
			Notifications:     p.notifications,
		}
		switch {
		case p.IsFemale():
			row.Pregnant = intPtr(btoi(p.preg.pregnant))
			row.Pregnancies = intPtr(p.preg.pregnancies)
			row.Abortions = intPtr(p.preg.abortions)
			row.Children = intPtr(p.children)
		case p.IsMale():
			row.Children = intPtr(p.children)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SnapshotPartnerships returns the running partnerships, or the ended ones
// still in memory with old.
func (s *Simulator) SnapshotPartnerships(old bool) ([]PartnershipRow, error) {
	if s.closed {
		return nil, ErrClosed
	}
	ids := s.adhocIDs()
	list := s.pop.partnerships.slice()
	if old {
		list = s.pop.ended.slice()
	}
	rows := make([]PartnershipRow, 0, len(list))
	for _, ps := range list {
		rows = append(rows, PartnershipRow{
			PSUID:          ps.id,
			AdhocID1:       adhocOf(ids, ps.p1),
			AdhocID2:       adhocOf(ids, ps.p2),
			PUID1:          ps.p1.id,
			PUID2:          ps.p2.id,
			Type:           ps.Type(),
			Bin:            ps.bin,
			FormerType:     ps.info.FormerType,
			Begin:          ps.birth,
			End:            ps.death,
			Fitness:        ps.info.Fitness,
			Tries:          ps.info.Tries,
			Contacts:       ps.contacts,
			ContactsUnprot: ps.contactsUnprot,
		})
	}
	return rows, nil
}

// SnapshotInfections returns the current infections, or the old ones with
// oldInfections, of the live persons, or of the dead ones with oldPeople.
func (s *Simulator) SnapshotInfections(oldInfections, oldPeople bool) ([]InfectionRow, error) {
	if s.closed {
		return nil, ErrClosed
	}
	ids := s.adhocIDs()
	var rows []InfectionRow
	for _, p := range s.people(oldPeople) {
		list := p.infections
		if oldInfections {
			list = p.infectionsOld
		}
		for _, inf := range list {
			row := InfectionRow{
				InfUID:      inf.id,
				StrainID:    inf.strain,
				HostPUID:    p.id,
				HostAdhocID: adhocOf(ids, p),
				Type:        inf.Type(),
				Bin:         inf.BinLinearised(),
				Birth:       inf.birth,
			}
			if inf.parent != nil {
				id := inf.parent.id
				row.ParentInfUID = &id
			}
			if inf.ps != nil {
				id := inf.ps.id
				row.PSUID = &id
			}
			if inf.immunityAt < p.death && !math.IsInf(inf.immunityAt, 1) {
				v := inf.immunityAt
				row.EndInfection = &v
			}
			if inf.death < p.death {
				v := inf.death
				row.Death = &v
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// SnapshotNotifications returns the notifications sent by the live persons,
// or by the dead ones with old.
func (s *Simulator) SnapshotNotifications(old bool) ([]NotificationRecord, error) {
	if s.closed {
		return nil, ErrClosed
	}
	var rows []NotificationRecord
	for _, p := range s.people(old) {
		rows = append(rows, p.notifRecords...)
	}
	return rows, nil
}

// SnapshotVisits returns the clinic visits of the live persons, or of the
// dead ones with old.
func (s *Simulator) SnapshotVisits(old bool) ([]VisitRecord, error) {
	if s.closed {
		return nil, ErrClosed
	}
	var rows []VisitRecord
	for _, p := range s.people(old) {
		rows = append(rows, p.visitRecords...)
	}
	return rows, nil
}

// BinLabels returns the labels of the linearised bins of a collection, one of
// "person", "infection" or "partnership".
func (s *Simulator) BinLabels(collection string) []string {
	for _, c := range s.collections() {
		if *c != nil && (*c).name == collection {
			return (*c).BinLabels()
		}
	}
	return nil
}
