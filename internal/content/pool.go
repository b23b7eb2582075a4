package content

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PoolEntry is one pre-authored item used when the model path is unavailable.
type PoolEntry struct {
	Headline    string `yaml:"headline"`
	Explanation string `yaml:"explanation"`
	Code        string `yaml:"code"`
}

// LoadPool reads a YAML list of pool entries. Order is preserved.
func LoadPool(path string) ([]PoolEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pool file: %w", err)
	}
	var entries []PoolEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse pool file %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, errors.New("pool file contains no entries")
	}
	for idx, entry := range entries {
		if strings.TrimSpace(entry.Headline) == "" || strings.TrimSpace(entry.Code) == "" {
			return nil, fmt.Errorf("pool entry %d: headline and code are required", idx+1)
		}
	}
	return entries, nil
}

// DefaultPool returns the built-in entries in their fixed order.
func DefaultPool() []PoolEntry {
	out := make([]PoolEntry, len(builtinPool))
	copy(out, builtinPool)
	return out
}

var builtinPool = []PoolEntry{
	{
		Headline:    "Using enumerate for index and value",
		Explanation: "Instead of using range(len()), use enumerate() to get both index and value when iterating over a sequence. This is more Pythonic and readable.",
		Code: `# Bad approach
items = ['apple', 'banana', 'cherry']
for i in range(len(items)):
    print(f"{i}: {items[i]}")

# Better approach with enumerate
items = ['apple', 'banana', 'cherry']
for index, item in enumerate(items):
    print(f"{index}: {item}")

# Start counting from 1 instead of 0
for index, item in enumerate(items, start=1):
    print(f"{index}: {item}")`,
	},
	{
		Headline:    "Dictionary get method with default value",
		Explanation: "Use the get() method to safely retrieve dictionary values with a default fallback, avoiding KeyError exceptions.",
		Code: `# Without get() - may raise KeyError
user = {'name': 'Alice', 'age': 30}
# email = user['email']  # This would raise KeyError

# With get() - returns None if key doesn't exist
email = user.get('email')
print(f"Email: {email}")  # Email: None

# With get() and custom default value
email = user.get('email', 'not provided')
print(f"Email: {email}")  # Email: not provided`,
	},
	{
		Headline:    "List comprehension for cleaner code",
		Explanation: "Use list comprehensions instead of loops for creating lists. They are more concise, readable, and often faster.",
		Code: `# Traditional approach with loop
squares = []
for i in range(10):
    squares.append(i ** 2)

# Better approach with list comprehension
squares = [i ** 2 for i in range(10)]

# With conditional filtering
even_squares = [i ** 2 for i in range(10) if i % 2 == 0]
print(even_squares)  # [0, 4, 16, 36, 64]`,
	},
	{
		Headline:    "Using f-strings for formatting",
		Explanation: "F-strings (formatted string literals) provide a concise and readable way to embed expressions inside string literals. They're faster and more readable than older formatting methods.",
		Code: `name = "Alice"
age = 30
city = "Paris"

# Old way with %
message = "My name is %s, I'm %d years old, from %s" % (name, age, city)

# Better with .format()
message = "My name is {}, I'm {} years old, from {}".format(name, age, city)

# Best with f-strings (Python 3.6+)
message = f"My name is {name}, I'm {age} years old, from {city}"
print(message)

# F-strings can include expressions
print(f"Next year I'll be {age + 1} years old")`,
	},
	{
		Headline:    "Context managers with statement",
		Explanation: "Use context managers (with statement) to ensure resources are properly managed and cleaned up, even if exceptions occur. Most commonly used with file operations.",
		Code: `# Without context manager (bad practice)
file = open('example.txt', 'r')
data = file.read()
file.close()  # What if an error occurs before this?

# With context manager (recommended)
with open('example.txt', 'r') as file:
    data = file.read()
    # File automatically closes when leaving the block

# Multiple context managers
with open('input.txt', 'r') as infile, open('output.txt', 'w') as outfile:
    for line in infile:
        outfile.write(line.upper())`,
	},
	{
		Headline:    "Using *args and **kwargs",
		Explanation: "*args allows a function to accept any number of positional arguments, while **kwargs allows any number of keyword arguments. These make functions more flexible.",
		Code: `# *args for variable positional arguments
def sum_all(*args):
    return sum(args)

print(sum_all(1, 2, 3))  # 6
print(sum_all(1, 2, 3, 4, 5))  # 15

# **kwargs for variable keyword arguments
def print_info(**kwargs):
    for key, value in kwargs.items():
        print(f"{key}: {value}")

print_info(name="Alice", age=30, city="Paris")

# Combining regular args with *args and **kwargs
def flexible_function(required, *args, default="yes", **kwargs):
    print(f"Required: {required}")
    print(f"Args: {args}")
    print(f"Default: {default}")
    print(f"Kwargs: {kwargs}")

flexible_function("must have", 1, 2, 3, default="no", extra="data")`,
	},
}
