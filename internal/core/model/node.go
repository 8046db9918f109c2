package model

// AuthorMetadata is the entity record retrieved for one author identifier
// during metadata enrichment.
type AuthorMetadata struct {
	SID         string   `json:"sid"`
	Surname     string   `json:"surname"`
	Given       string   `json:"given"`
	Docs        int      `json:"docs"`
	Areas       []string `json:"areas"`
	Affiliation string   `json:"affiliation"`
	Country     string   `json:"country"`
}

// Node property names shared by the network builder, collapser and exports.
const (
	PropSID         = "sid"
	PropSurname     = "surname"
	PropGiven       = "given"
	PropDocs        = "docs"
	PropAreas       = "areas"
	PropAffiliation = "affiliation"
	PropCountry     = "country"
)
