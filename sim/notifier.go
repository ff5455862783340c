package sim

import (
	"math"

	"github.com/aroellin/rstisim/sim/config"
	"github.com/aroellin/rstisim/sim/dist"
)

// NotificationRecord logs one partner notification sent at a visit.
type NotificationRecord struct {
	NotifierType int
	ID           int64
	Link         int
	Time         float64

	Sender     int64
	SenderType int
	SenderBin  int

	Receiver     int64
	ReceiverType int
	ReceiverBin  int

	Partnership int64
	PSType      int
	PSBin       int
}

// Notifier is a partner notification type. It notifies the current partners
// of a person and, looking back in time, a limited number of former ones.
type Notifier struct {
	*Creator
	uniform *dist.Distribution

	useOr          Attribute
	goBackTime     Attribute
	goBackPartners Attribute

	couple         *PairAttribute
	factorSender   Attribute
	factorReceiver Attribute
	factorPS       Attribute
	waitCouple     *PairAttribute
	waitSender     Attribute
	waitReceiver   Attribute
	gpVisitType    Attribute
}

func newNotifier(s *Simulator, name string, cfg *config.Node) (*Notifier, error) {
	if err := genericOnly(cfg, name); err != nil {
		return nil, err
	}
	cr, err := newCreator(s, s.coll.notifiers, name, cfg, nil)
	if err != nil {
		return nil, err
	}
	n := &Notifier{Creator: cr}
	if n.uniform, err = n.uniformAt("uniformdistribution"); err != nil {
		return nil, err
	}

	people := s.coll.persons
	attr := func(dst *Attribute, c *Collection, key string, def float64) {
		if err == nil {
			*dst, err = n.InstallAttribute(c, key, "", def)
		}
	}
	pair := func(dst **PairAttribute, key string, init, def float64) {
		if err == nil {
			*dst, err = n.InstallPairAttribute(people, key, init, def)
		}
	}
	attr(&n.useOr, people, "probabilitygobackuseor", 0)
	attr(&n.goBackTime, people, "gobacktime", 0)
	attr(&n.goBackPartners, people, "gobackpartners", 0)
	pair(&n.couple, "probabilitycouple", 0, 1)
	attr(&n.factorSender, people, "probabilityfactorsender", 1)
	attr(&n.factorReceiver, people, "probabilityfactorreceiver", 1)
	attr(&n.factorPS, s.coll.partnerships, "probabilityfactorpartnership", 1)
	pair(&n.waitCouple, "waitforreactioncouple", math.Inf(1), 0)
	attr(&n.waitSender, people, "waitforreactionfactorsender", 1)
	attr(&n.waitReceiver, people, "waitforreactionfactorreceiver", 1)
	attr(&n.gpVisitType, people, "gpvisittype", 0)
	if err != nil {
		return nil, err
	}
	if k := s.coll.visits.Len(); k > 0 {
		if err := people.AttributeDistribution(n.gpVisitType).CheckRange(0, float64(k-1)); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// notifyPartners notifies the partners of p that are not yet part of the
// chain notif. All current partners are candidates. Former partners are
// visited newest first until either the number of partners or the time
// window is exhausted; with probability 'probabilitygobackuseor' the search
// continues as long as one of the two limits still holds.
func (n *Notifier) notifyPartners(p *Person, notif Notification) error {
	if notif.Link > 0 && notif.ID == 0 {
		return invariantOn(p, "linknumber >0 but notification id not set")
	}
	now := n.sim.Now()
	next := Notification{ID: notif.ID, Link: notif.Link + 1}

	useOr, err := p.Attribute(n.useOr, now)
	if err != nil {
		return err
	}
	howLong, err := p.Attribute(n.goBackTime, now)
	if err != nil {
		return err
	}
	partners, err := p.Attribute(n.goBackPartners, now)
	if err != nil {
		return err
	}
	howMany := dist.FloorInt(partners)

	for _, ps := range p.partnerships {
		if err := n.notifyOne(p, ps, notif, next); err != nil {
			return err
		}
	}

	u, err := n.uniform.Sample()
	if err != nil {
		return err
	}
	count := 0
	for _, ps := range p.partnershipsOld {
		count++
		tooOld := ps.death < now-howLong
		tooMany := count > howMany
		if u > useOr && tooMany && tooOld {
			break
		}
		if u <= useOr && (tooMany || tooOld) {
			break
		}
		if err := n.notifyOne(p, ps, notif, next); err != nil {
			return err
		}
	}
	return nil
}

// notifyOne notifies p's partner in ps. A reached partner visits a clinic
// after the sampled reaction time.
func (n *Notifier) notifyOne(p *Person, ps *Partnership, notif, next Notification) error {
	partner, err := ps.Partner(p)
	if err != nil {
		return err
	}
	if partner.isNotifiedAlready(notif) {
		return nil
	}
	partner.setLinkNumber(next.Link)

	now := n.sim.Now()
	prob, err := n.couple.SampleFor(p, partner, now)
	if err != nil {
		return err
	}
	for _, f := range []struct {
		who  interface{ Attribute(Attribute, float64) (float64, error) }
		attr Attribute
	}{
		{p, n.factorSender},
		{partner, n.factorReceiver},
		{ps, n.factorPS},
	} {
		v, err := f.who.Attribute(f.attr, now)
		if err != nil {
			return err
		}
		prob *= v
	}
	u, err := n.uniform.Sample()
	if err != nil {
		return err
	}
	if u >= prob {
		return nil
	}

	fs, err := p.Attribute(n.waitSender, now)
	if err != nil {
		return err
	}
	fr, err := partner.Attribute(n.waitReceiver, now)
	if err != nil {
		return err
	}
	d, err := n.waitCouple.At(p.Type(), partner.BinLinearised())
	if err != nil {
		return err
	}
	wait, err := d.SampleWithFactorFor(fs*fr, p, now)
	if err != nil {
		return err
	}
	gt, err := partner.Attribute(n.gpVisitType, now)
	if err != nil {
		return err
	}
	p.slotNotifyingPartner(partner, ps, n, notif)
	return partner.slotVisitGPNotified(dist.FloorInt(gt), wait, next)
}
