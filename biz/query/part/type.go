package part

import "sort"

// Type 是方法名片段的比较类型
type Type int

const (
	SimpleProperty Type = iota
	NegatingSimpleProperty
	GreaterThan
	GreaterThanEqual
	LessThan
	LessThanEqual
	Before
	After
	Between
	Like
	NotLike
	StartingWith
	EndingWith
	Containing
	NotContaining
	In
	NotIn
	IsNull
	IsNotNull
	True
	False
	Exists
	IsEmpty
	IsNotEmpty
	Regex
	Near
	Within
)

var typeNames = map[Type]string{
	SimpleProperty:         "SIMPLE_PROPERTY",
	NegatingSimpleProperty: "NEGATING_SIMPLE_PROPERTY",
	GreaterThan:            "GREATER_THAN",
	GreaterThanEqual:       "GREATER_THAN_EQUAL",
	LessThan:               "LESS_THAN",
	LessThanEqual:          "LESS_THAN_EQUAL",
	Before:                 "BEFORE",
	After:                  "AFTER",
	Between:                "BETWEEN",
	Like:                   "LIKE",
	NotLike:                "NOT_LIKE",
	StartingWith:           "STARTING_WITH",
	EndingWith:             "ENDING_WITH",
	Containing:             "CONTAINING",
	NotContaining:          "NOT_CONTAINING",
	In:                     "IN",
	NotIn:                  "NOT_IN",
	IsNull:                 "IS_NULL",
	IsNotNull:              "IS_NOT_NULL",
	True:                   "TRUE",
	False:                  "FALSE",
	Exists:                 "EXISTS",
	IsEmpty:                "IS_EMPTY",
	IsNotEmpty:             "IS_NOT_EMPTY",
	Regex:                  "REGEX",
	Near:                   "NEAR",
	Within:                 "WITHIN",
}

func (t Type) String() string {
	return typeNames[t]
}

// NumberOfArguments 该比较类型需要绑定的实参个数
func (t Type) NumberOfArguments() int {
	switch t {
	case IsNull, IsNotNull, True, False, Exists, IsEmpty, IsNotEmpty:
		return 0
	case Between, Near:
		return 2
	default:
		return 1
	}
}

// 关键字表，一个类型可以有多种写法
var keywords = map[Type][]string{
	SimpleProperty:         {"Is", "Equals"},
	NegatingSimpleProperty: {"IsNot", "Not"},
	GreaterThan:            {"IsGreaterThan", "GreaterThan"},
	GreaterThanEqual:       {"IsGreaterThanEqual", "GreaterThanEqual"},
	LessThan:               {"IsLessThan", "LessThan"},
	LessThanEqual:          {"IsLessThanEqual", "LessThanEqual"},
	Before:                 {"IsBefore", "Before"},
	After:                  {"IsAfter", "After"},
	Between:                {"IsBetween", "Between"},
	Like:                   {"IsLike", "Like"},
	NotLike:                {"IsNotLike", "NotLike"},
	StartingWith:           {"IsStartingWith", "StartingWith", "StartsWith"},
	EndingWith:             {"IsEndingWith", "EndingWith", "EndsWith"},
	Containing:             {"IsContaining", "Containing", "Contains"},
	NotContaining:          {"IsNotContaining", "NotContaining", "NotContains"},
	In:                     {"IsIn", "In"},
	NotIn:                  {"IsNotIn", "NotIn"},
	IsNull:                 {"IsNull", "Null"},
	IsNotNull:              {"IsNotNull", "NotNull"},
	True:                   {"IsTrue", "True"},
	False:                  {"IsFalse", "False"},
	Exists:                 {"Exists"},
	IsEmpty:                {"IsEmpty", "Empty"},
	IsNotEmpty:             {"IsNotEmpty", "NotEmpty"},
	Regex:                  {"MatchesRegex", "Matches", "Regex"},
	Near:                   {"IsNear", "Near"},
	Within:                 {"IsWithin", "Within"},
}

type keyword struct {
	text string
	typ  Type
}

// 按长度降序，保证 IsNotNull 先于 NotNull、Null 匹配
var sortedKeywords = func() []keyword {
	var all []keyword
	for t, kws := range keywords {
		for _, k := range kws {
			all = append(all, keyword{text: k, typ: t})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if len(all[i].text) != len(all[j].text) {
			return len(all[i].text) > len(all[j].text)
		}
		return all[i].text < all[j].text
	})
	return all
}()
