package generator

// tweetWords feed the text generator. All ASCII, longest entry well
// under the 144-char text limit.
var tweetWords = []string{
	"just", "shipped", "a", "new", "release", "today", "and", "the",
	"build", "is", "finally", "green", "again", "coffee", "first",
	"then", "code", "review", "friday", "deploys", "are", "fine",
	"probably", "reading", "about", "distributed", "systems", "at",
	"midnight", "again", "my", "cat", "walked", "across", "the",
	"keyboard", "and", "fixed", "the", "bug", "hot", "take", "tabs",
	"over", "spaces", "the", "weather", "in", "the", "cloud", "is",
	"always", "partly", "cached", "benchmarks", "look", "good", "on",
	"my", "machine", "refactoring", "is", "self", "care", "merge",
	"conflicts", "build", "character", "happy", "monday", "everyone",
	"who", "else", "is", "debugging", "in", "production", "lunch",
	"was", "great", "highly", "recommend", "the", "new", "place",
	"downtown", "sunset", "tonight", "was", "unreal", "no", "filter",
}

// handles feed generated user emails.
var handles = []string{
	"ada", "grace", "linus", "ken", "dennis", "barbara", "margaret",
	"alan", "edsger", "donald", "radia", "vint", "tim", "brendan",
	"guido", "bjarne", "james", "anders", "rob", "russ",
}
