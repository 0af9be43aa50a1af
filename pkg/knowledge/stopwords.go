package knowledge

// DefaultStopWords are skipped when scanning message words. Mention names
// bypass this list.
var DefaultStopWords = []string{
	"the", "be", "to", "of", "and", "a", "in", "that", "have", "i", "it", "for", "not", "on", "with",
	"he", "as", "you", "do", "at", "this", "but", "his", "by", "from", "they", "we", "say", "her",
	"she", "or", "an", "will", "my", "one", "all", "would", "there", "their", "what", "so", "up",
	"out", "if", "about", "who", "get", "which", "go", "me", "when", "make", "can", "like", "time",
	"no", "just", "him", "know", "take", "people", "into", "year", "your", "good", "some", "could",
	"them", "see", "other", "than", "then", "now", "look", "only", "come", "its", "over", "think",
	"also", "back", "after", "use", "two", "how", "our", "work", "first", "well", "way", "even",
	"new", "want", "because", "any", "these", "give", "day", "most", "us", "is", "am", "are", "has",
	"was", "were", "being", "been", "does", "did", "doing", "until", "while", "against", "between",
	"through", "during", "before", "above", "below", "down", "off", "under", "again", "further",
	"once", "here", "where", "why", "both", "each", "few", "more", "such", "nor", "own", "same",
	"too", "very", "s", "t", "don", "should", "ll", "re", "ve", "y", "ain", "those", "myself",
	"ourselves", "yourself", "yourselves", "himself", "herself", "itself", "themselves", "whom",
	"had", "having", "ought", "mine", "yours", "hers", "ours", "theirs",
}
