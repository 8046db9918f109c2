package model

// DuplicateGroup is a reviewer-confirmed set of node keys that denote the
// same author, with the canonical name for the merged node.
type DuplicateGroup struct {
	Surname string   `json:"surname"`
	Given   string   `json:"given"`
	SIDs    []string `json:"sids"`
}

// Candidate is one node surfaced for manual duplicate review.
type Candidate struct {
	SurnameASCII string `json:"surname_ascii"`
	Surname      string `json:"surname"`
	Given        string `json:"given"`
	SID          string `json:"sid"`
	Affiliation  string `json:"affiliation"`
	Country      string `json:"country"`
}

// CandidateGroup collects candidates sharing one folded surname.
type CandidateGroup struct {
	SurnameASCII string      `json:"surname_ascii"`
	Members      []Candidate `json:"members"`
}
