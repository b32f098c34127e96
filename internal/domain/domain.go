// Package domain holds the fixed catalog of business domains a user can pick to steer suggestions.
package domain

import (
	"regexp"
	"sort"
	"strings"
)

// Profile describes one business domain. Profiles are immutable once the catalog is built.
type Profile struct {
	Name        string
	Aliases     []string
	Tables      map[string][]string
	KeyMetrics  []string
	Prompt      string
	CommonTerms map[string]string
}

var exampleLine = regexp.MustCompile(`^[1-9][[:punct:]]`)

// Examples returns the numbered worked-example lines of the profile prompt, trimmed.
func (p *Profile) Examples() []string {
	var examples []string
	for _, line := range strings.Split(p.Prompt, "\n") {
		line = strings.TrimSpace(line)
		if exampleLine.MatchString(line) {
			examples = append(examples, line)
		}
	}
	return examples
}

// TableNames returns the profile's table names in lexical order.
func (p *Profile) TableNames() []string {
	names := make([]string, 0, len(p.Tables))
	for name := range p.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Catalog struct {
	profiles []*Profile
	index    map[string]*Profile
}

func NewCatalog(profiles ...*Profile) *Catalog {
	c := &Catalog{index: make(map[string]*Profile)}
	for _, profile := range profiles {
		c.profiles = append(c.profiles, profile)
		c.index[normalize(profile.Name)] = profile
		for _, alias := range profile.Aliases {
			c.index[normalize(alias)] = profile
		}
	}
	return c
}

// Lookup resolves a domain name or alias, case-insensitively.
func (c *Catalog) Lookup(name string) (*Profile, bool) {
	if c == nil {
		return nil, false
	}
	profile, ok := c.index[normalize(name)]
	return profile, ok
}

// Profiles returns the profiles in registration order.
func (c *Catalog) Profiles() []*Profile {
	if c == nil {
		return nil
	}
	out := make([]*Profile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var projectColumns = []string{"project_id", "project_name", "start_date", "end_date", "budget", "status", "client_name"}

func DefaultCatalog() *Catalog {
	return NewCatalog(
		&Profile{
			Name:    "employee",
			Aliases: []string{"employees", "hr", "projects"},
			Tables: map[string][]string{
				"employees":         {"id", "name", "department", "salary", "doj", "manager_id", "performance_score", "skills"},
				"projects":          projectColumns,
				"employee_projects": {"employee_id", "project_id", "role", "hours_worked", "contribution_percentage"},
			},
			KeyMetrics: []string{"Employee Salary", "Department Performance", "Hours Worked on Projects", "Project Contribution"},
			Prompt: `You are an employee and project performance analytics expert. You help users analyze employee data, project involvement, and productivity metrics.
Focus on metrics like employee salaries, department performance, hours worked on projects, and contribution percentages.

Example queries and their SQL:
1. "What is the average salary by department?"
   SELECT department, AVG(salary) AS average_salary FROM employees GROUP BY department;

2. "Show me employees working on 'Project X' and their hours"
   SELECT e.name, ep.hours_worked
   FROM employees e
   JOIN employee_projects ep ON e.id = ep.employee_id
   JOIN projects p ON ep.project_id = p.project_id
   WHERE p.project_name = 'Project X';

3. "Who are the top 5 highest paid employees?"
   SELECT name, salary, department FROM employees ORDER BY salary DESC LIMIT 5;

4. "List employees who started in the last year"
   SELECT id, name, doj, department
   FROM employees
   WHERE doj >= CURRENT_DATE - INTERVAL 1 YEAR;
`,
			CommonTerms: map[string]string{
				"average_salary":     "AVG(salary)",
				"total_hours_worked": "SUM(hours_worked)",
				"department":         "department",
				"salary":             "salary",
			},
		},
		&Profile{
			Name: "sales",
			Tables: map[string][]string{
				"sales":    {"sale_id", "project_id", "amount", "sale_date", "payment_status"},
				"projects": projectColumns,
			},
			KeyMetrics: []string{"Total Revenue", "Sales per Project", "Average Sale Amount"},
			Prompt: `You are a sales analytics expert. You help users analyze sales data and project-related sales performance.
Focus on metrics like total revenue, sales per project, and average sale amounts.

Example queries and their SQL:
1. "Show me total sales amount for each project"
   SELECT p.project_name, SUM(s.amount) AS total_sales_amount
   FROM sales s
   JOIN projects p ON s.project_id = p.project_id
   GROUP BY p.project_name
   ORDER BY total_sales_amount DESC;

2. "What was the total revenue in March?"
   SELECT SUM(amount) AS total_revenue
   FROM sales
   WHERE EXTRACT(MONTH FROM sale_date) = 3 AND EXTRACT(YEAR FROM sale_date) = EXTRACT(YEAR FROM CURRENT_DATE);

3. "Show me sales by payment status"
   SELECT payment_status, COUNT(sale_id) AS number_of_sales, SUM(amount) AS total_amount
   FROM sales
   GROUP BY payment_status;
`,
			CommonTerms: map[string]string{
				"total_revenue":  "SUM(amount)",
				"sales_amount":   "amount",
				"sales_date":     "sale_date",
				"payment_status": "payment_status",
			},
		},
		&Profile{
			Name:    "support",
			Aliases: []string{"feedback"},
			Tables: map[string][]string{
				"customer_feedback": {"feedback_id", "project_id", "rating", "feedback_text", "feedback_date"},
				"projects":          projectColumns,
			},
			KeyMetrics: []string{"Average Rating", "Feedback Volume", "Feedback per Project"},
			Prompt: `You are a customer support and feedback analytics expert. You help users analyze customer feedback and relate it to projects.
Focus on metrics like average ratings, volume of feedback, and specific feedback texts.

Example queries and their SQL:
1. "Show me the average rating for each project"
   SELECT p.project_name, AVG(cf.rating) AS average_rating
   FROM customer_feedback cf
   JOIN projects p ON cf.project_id = p.project_id
   GROUP BY p.project_name
   ORDER BY average_rating DESC;

2. "How many feedback entries were received last month?"
   SELECT COUNT(feedback_id) AS total_feedback_last_month
   FROM customer_feedback
   WHERE date_trunc('month', feedback_date) = date_trunc('month', CURRENT_DATE - INTERVAL 1 MONTH);

3. "Show me all feedback for projects with low ratings (e.g., less than 3)"
   SELECT cf.feedback_text, cf.rating, p.project_name
   FROM customer_feedback cf
   JOIN projects p ON cf.project_id = p.project_id
   WHERE cf.rating < 3;
`,
			CommonTerms: map[string]string{
				"average_rating":  "AVG(rating)",
				"feedback_volume": "COUNT(feedback_id)",
				"feedback_date":   "feedback_date",
			},
		},
	)
}
