package evaluator

// harmfulKeywords is the curated lexicon for outbound content. A single
// case-insensitive substring hit flags the output. Grouped by category;
// matching is flat.
var harmfulKeywords = []string{
	// Violence and physical harm
	"kill", "murder", "stab", "shoot", "bomb", "explode",
	"explosion", "massacre", "violence", "beat", "attack",
	"assault", "harm", "abuse", "torture", "hang", "strangle",
	"choke", "execute", "arson", "burn", "poison",
	"weapon", "gun", "knife", "grenade", "molotov",

	// Self-harm and suicide
	"suicide", "self-harm", "self harm", "kill myself",
	"end my life", "cut myself", "hurt myself", "jump off",
	"i want to die", "take my life", "no reason to live",

	// Terrorism and extremism
	"terror", "terrorism", "extremist", "radicalize",
	"bomb-making", "bomb making", "detonator",
	"recruit for jihad", "isis", "al qaeda",
	"how to join extremist group",

	// Cybercrime and exploits
	"exploit", "zero-day", "0day", "dos attack",
	"ddos", "malware", "virus", "trojan", "ransomware",
	"keylogger", "phishing", "sql injection", "xss attack",
	"csrf attack", "backdoor", "botnet",

	// Illegal goods and activities
	"drug", "cocaine", "heroin", "meth", "mdma",
	"sell drugs", "buy drugs", "cartel", "trafficking",
	"black market", "counterfeit", "fraud", "scam",
	"money laundering", "illegal hacking", "dark web",

	// Exploitation and abuse
	"sexual exploitation", "child abuse",
	"grooming", "rape", "molest", "harass", "domestic abuse",

	// Dangerous instructions
	"how to make a bomb", "how to poison someone",
	"how to bypass security", "how to break into",
	"how to hack", "instructions for weapon creation",
	"disable security", "bypass restrictions",

	// Hate speech
	"hate", "hate speech", "racial slur", "ethnic slur",
	"genocide", "ethnic cleansing", "kill all", "destroy group",
	"holocaust denial", "nazi propaganda",

	// Biohazard
	"engineer virus", "engineer pathogen", "bioweapon",
	"weaponize bacteria", "create deadly virus",
	"gain of function",

	// Misc highly sensitive
	"contract killer", "hitman", "buy weapon illegally",
	"dangerous chemicals", "make explosives",
	"undetectable weapon", "harm instructions",
}
