package dist

// Covariate names an integer property of a sampled entity that selects an
// entry of an array distribution.
type Covariate string

const (
	CurrentPartners      Covariate = "currentpartners"
	CurrentPartnersType0 Covariate = "currentpartnerstype0"
	CurrentPartnersType1 Covariate = "currentpartnerstype1"
	CurrentPartnersType2 Covariate = "currentpartnerstype2"
	CurrentPartnersType3 Covariate = "currentpartnerstype3"
	CurrentPartnersType4 Covariate = "currentpartnerstype4"
	TotalPartners        Covariate = "totalpartners"
	WithinPartners       Covariate = "withinpartners"
	CurrentInfections    Covariate = "currentinfections"
	TotalInfections      Covariate = "totalinfections"
	WithinInfections     Covariate = "withininfections"
	Abortions            Covariate = "abortions"
	Pregnancies          Covariate = "pregnancies"
	Contacts             Covariate = "contacts"
	UnprotectedContacts  Covariate = "unprotectedcontacts"
	LinkNumber           Covariate = "linknumber"
	Children             Covariate = "children"
	Treatments           Covariate = "treatments"
	AlreadyNotified      Covariate = "alreadynotified"
	PositiveTests        Covariate = "positivetests"
	Sum                  Covariate = "sum"
	Product              Covariate = "product"
	IsPregnant           Covariate = "ispregnant"
	IsActive             Covariate = "isactive"
	Bin                  Covariate = "bin"
	Type                 Covariate = "type"
)

// counted covariates take explicit minimum/maximum keys and integer sub-keys.
var counted = map[Covariate]bool{
	CurrentPartners: true, CurrentPartnersType0: true, CurrentPartnersType1: true,
	CurrentPartnersType2: true, CurrentPartnersType3: true, CurrentPartnersType4: true,
	TotalPartners: true, WithinPartners: true,
	CurrentInfections: true, TotalInfections: true, WithinInfections: true,
	Abortions: true, Pregnancies: true, Contacts: true, UnprotectedContacts: true,
	LinkNumber: true, Children: true, Treatments: true, AlreadyNotified: true,
	PositiveTests: true, Sum: true, Product: true,
}

// PartnersOfType returns the covariate counting current partnerships of the
// given partnership type, for types 0 to 4.
func PartnersOfType(t int) (Covariate, bool) {
	switch t {
	case 0:
		return CurrentPartnersType0, true
	case 1:
		return CurrentPartnersType1, true
	case 2:
		return CurrentPartnersType2, true
	case 3:
		return CurrentPartnersType3, true
	case 4:
		return CurrentPartnersType4, true
	}
	return "", false
}

// Subject is an entity a distribution can be sampled against.
type Subject interface {
	Birth() float64
	Number(c Covariate) (int, error)
}

// Hosted is a subject living inside another subject, such as an infection
// inside its host person.
type Hosted interface {
	Subject
	HostSubject() Subject
}
