package location

import "math"

// Canonical district names of Częstochowa. Resolve never returns any other
// spelling for this city.
const (
	Bleszno          = "Błeszno"
	Dzbow            = "Dźbów"
	GnaszynKawodrza  = "Gnaszyn-Kawodrza"
	Grabowka         = "Grabówka"
	Kiedrzyn         = "Kiedrzyn"
	Lisiniec         = "Lisiniec"
	Mirow            = "Mirów"
	OstatniGrosz     = "Ostatni Grosz"
	Parkitka         = "Parkitka"
	Podjasnogorska   = "Podjasnogórska"
	Polnoc           = "Północ"
	Rakow            = "Raków"
	StareMiasto      = "Stare Miasto"
	Stradom          = "Stradom"
	Srodmiescie      = "Śródmieście"
	TrzechWieszczow  = "Trzech Wieszczów"
	Tysiaclecie      = "Tysiąclecie"
	Wrzosowiak       = "Wrzosowiak"
	WyczerpyAniolow  = "Wyczerpy-Aniołów"
	ZawodzieDabie    = "Zawodzie-Dąbie"
	DefaultCity      = "Częstochowa"
	tableVersion     = 3
	noEvenHouseLimit = math.MaxInt
)

// Districts is the ordered canonical list.
var Districts = []string{
	Bleszno, Dzbow, GnaszynKawodrza, Grabowka, Kiedrzyn,
	Lisiniec, Mirow, OstatniGrosz, Parkitka, Podjasnogorska,
	Polnoc, Rakow, StareMiasto, Stradom, Srodmiescie,
	TrzechWieszczow, Tysiaclecie, Wrzosowiak, WyczerpyAniolow, ZawodzieDabie,
}

// TableVersion identifies the street table revision; bump it whenever
// streetsByDistrict or splitStreets change.
func TableVersion() int { return tableVersion }

// SplitRule assigns a street to one of two districts by house number.
// Odd numbers >= OddFrom and even numbers >= EvenFrom go to Upper,
// everything else to Lower.
type SplitRule struct {
	OddFrom  int
	EvenFrom int
	Upper    string
	Lower    string
}

func (r SplitRule) resolve(number int) string {
	limit := r.EvenFrom
	if number%2 != 0 {
		limit = r.OddFrom
	}
	if number >= limit {
		return r.Upper
	}
	return r.Lower
}

var splitStreets = map[string]SplitRule{
	"Aleja Wolności": {OddFrom: 51, EvenFrom: 46, Upper: Parkitka, Lower: Srodmiescie},
	// odd side only borders Parkitka
	"Aleja Armii Krajowej": {OddFrom: 0, EvenFrom: noEvenHouseLimit, Upper: Parkitka, Lower: Tysiaclecie},
}

var streetsByDistrict = map[string][]string{
	Bleszno: {
		"Bakaliowa", "Błeszyńska", "Kawia", "Borowikowa", "Gościnna", "Chabrowa",
	},
	Dzbow: {
		"Dźbowska", "Przestrzenna", "Gliniana", "Łódzka",
	},
	GnaszynKawodrza: {
		"Gnaszyńska", "Wręczycka", "Kawodrzańska", "Bardowskiego",
	},
	Grabowka: {
		"Ludowa", "Grabówkowska", "Radomska", "Rejtana",
	},
	Kiedrzyn: {
		"Kiedrzyńska", "Szajnowicza-Iwanowa", "Św. Rocha", "Mstowska",
	},
	Lisiniec: {
		"Łukasińskiego", "Olsztyńska", "Sabinowska", "Bór",
	},
	Mirow: {
		"Mirowska", "Kucelińska", "Sporna",
	},
	OstatniGrosz: {
		"Krakowska", "Prosta", "Żyzna",
	},
	Parkitka: {
		"Bohaterów Monte Cassino", "Kisielewskiego", "Ludwika Zamenhofa",
	},
	Podjasnogorska: {
		"Św. Barbary", "Kordeckiego", "Klasztorna", "Pułaskiego",
	},
	Polnoc: {
		"Fieldorfa-Nila", "Bohaterów Katynia", "Wielkoborska", "Gombrowicza", "Leśmiana",
	},
	Rakow: {
		"Limanowskiego", "Jagiellońska", "Rakowska", "Zana", "Niedziałkowskiego",
	},
	StareMiasto: {
		"Warszawska", "Mostowa", "Nadrzeczna", "Plac Daszyńskiego", "Ogrodowa",
	},
	Stradom: {
		"Legionów", "Rolnicza", "Przemysłowa", "Strażacka", "Aleja Niepodległości",
	},
	Srodmiescie: {
		"Aleja Najświętszej Maryi Panny", "NMP", "Aleja Kościuszki", "Dąbrowskiego",
		"Piłsudskiego", "Focha", "Kopernika", "Jasnogórska", "Wilsona", "Kilińskiego",
	},
	TrzechWieszczow: {
		"Mickiewicza", "Słowackiego", "Krasińskiego", "Sobieskiego", "Bialska",
	},
	Tysiaclecie: {
		"Okulickiego", "Rydza-Śmigłego", "Kardynała Wyszyńskiego", "Jana Pawła II",
	},
	Wrzosowiak: {
		"Orkana", "Wrzosowa", "Kukuczki", "Bialska Boczna",
	},
	WyczerpyAniolow: {
		"Aniołowska", "Wyczerpska", "Bugajska", "Srebrna", "Złota",
	},
	ZawodzieDabie: {
		"Kanałowa", "Dąbska", "Brzozowa", "Szczytowa",
	},
}
