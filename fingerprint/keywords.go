package fingerprint

// reservedKeywords is the T-SQL reserved word set uppercased during
// normalization. Identifiers keep their original case.
var reservedKeywords = map[string]bool{
	"ADD": true, "ALL": true, "ALTER": true, "AND": true, "ANY": true,
	"AS": true, "ASC": true, "BEGIN": true, "BETWEEN": true, "BY": true,
	"CASE": true, "CAST": true, "CHECK": true, "COALESCE": true,
	"COLUMN": true, "COMMIT": true, "CONSTRAINT": true, "CONVERT": true,
	"COUNT": true, "CREATE": true, "CROSS": true, "CURRENT": true,
	"CURSOR": true, "DATABASE": true, "DECLARE": true, "DEFAULT": true,
	"DELETE": true, "DESC": true, "DISTINCT": true, "DROP": true,
	"ELSE": true, "END": true, "EXCEPT": true, "EXEC": true,
	"EXECUTE": true, "EXISTS": true, "FETCH": true, "FOR": true,
	"FOREIGN": true, "FROM": true, "FULL": true, "FUNCTION": true,
	"GROUP": true, "HAVING": true, "IF": true, "IN": true, "INDEX": true,
	"INNER": true, "INSERT": true, "INTERSECT": true, "INTO": true,
	"IS": true, "JOIN": true, "KEY": true, "LEFT": true, "LIKE": true,
	"LIMIT": true, "MAX": true, "MERGE": true, "MIN": true, "NOT": true,
	"NULL": true, "NULLIF": true, "OFFSET": true, "ON": true, "OR": true,
	"ORDER": true, "OUTER": true, "OVER": true, "PARTITION": true,
	"PRIMARY": true, "PROCEDURE": true, "RETURN": true, "RIGHT": true,
	"ROLLBACK": true, "ROWCOUNT": true, "SELECT": true, "SET": true,
	"SUM": true, "TABLE": true, "THEN": true, "TOP": true,
	"TRANSACTION": true, "TRIGGER": true, "TRUNCATE": true, "UNION": true,
	"UNIQUE": true, "UPDATE": true, "VALUES": true, "VIEW": true,
	"WHEN": true, "WHERE": true, "WHILE": true, "WITH": true,
}
