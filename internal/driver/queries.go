package driver

// IndexQueries are run once before an export.
var IndexQueries = []string{
	"CREATE INDEX ON :Author(key);",
	"CREATE INDEX ON :Author(surname);",
}

const (
	ClearAuthorsQuery = `
		MATCH (a:Author)
		DETACH DELETE a
	`

	SaveAuthorsQuery = `
		UNWIND $authors AS author
		MERGE (a:Author {key: author.key})
		SET a += author.properties
		RETURN count(a) AS saved
	`

	SaveCoauthorEdgesQuery = `
		UNWIND $edges AS edge
		MATCH (a:Author {key: edge.source})
		MATCH (b:Author {key: edge.target})
		MERGE (a)-[r:COAUTHOR]->(b)
		RETURN count(r) AS saved
	`
)
