package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/edulab/quiz-engine/internal/models"
	"github.com/edulab/quiz-engine/internal/repositories"
)

// fakeRepo is an in-memory repositories.Repository. WithTransaction snapshots
// the instance tables and restores them on error, so all-or-nothing behavior
// is observable in tests.
type fakeRepo struct {
	mu sync.Mutex

	questionSets map[uint]*models.QuestionSet
	questions    map[uint]*models.Question
	answers      map[uint]*models.Answer
	tests        map[uint]*models.Test
	instances    map[uint]*models.TestInstance
	assignments  map[uint][]*models.TestInstanceQuestion
	submitted    map[uint][]*models.SubmittedAnswer
	groups       map[uint]*models.Group
	memberships  []*models.GroupMembership
	users        map[string]*models.User

	nextID uint

	// Failure injection
	failCreateAssignments error
	failMarkSubmitted     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		questionSets: map[uint]*models.QuestionSet{},
		questions:    map[uint]*models.Question{},
		answers:      map[uint]*models.Answer{},
		tests:        map[uint]*models.Test{},
		instances:    map[uint]*models.TestInstance{},
		assignments:  map[uint][]*models.TestInstanceQuestion{},
		submitted:    map[uint][]*models.SubmittedAnswer{},
		groups:       map[uint]*models.Group{},
		users:        map[string]*models.User{},
	}
}

func (r *fakeRepo) id() uint {
	r.nextID++
	return r.nextID
}

// ===== TEST DATA BUILDERS =====

func (r *fakeRepo) addQuestionSet(name string, courseID uint) *models.QuestionSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := &models.QuestionSet{ID: r.id(), Name: name, CourseID: courseID, CreatedBy: "instructor-1"}
	r.questionSets[set.ID] = set
	return set
}

// addQuestion creates a question with one correct and the given number of
// wrong answers.
func (r *fakeRepo) addQuestion(setID uint, text string, number, wrongAnswers int) *models.Question {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := &models.Question{ID: r.id(), Text: text, QuestionSetID: setID, QuestionNumber: number}
	correct := &models.Answer{ID: r.id(), Text: text + " correct", Correct: true, QuestionID: q.ID}
	q.Answers = append(q.Answers, *correct)
	r.answers[correct.ID] = correct
	for i := 0; i < wrongAnswers; i++ {
		wrong := &models.Answer{ID: r.id(), Text: text + " wrong", QuestionID: q.ID}
		q.Answers = append(q.Answers, *wrong)
		r.answers[wrong.ID] = wrong
	}
	r.questions[q.ID] = q
	return q
}

func (r *fakeRepo) addTest(t *models.Test) *models.Test {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == 0 {
		t.ID = r.id()
	}
	r.tests[t.ID] = t
	return t
}

func (r *fakeRepo) addGroup(courseID uint, studentIDs ...string) *models.Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := &models.Group{ID: r.id(), Name: "group", CourseID: courseID}
	r.groups[g.ID] = g
	for _, sid := range studentIDs {
		r.memberships = append(r.memberships, &models.GroupMembership{
			ID: r.id(), GroupID: g.ID, UserID: sid, Role: models.MemberStudent, Active: true,
		})
	}
	return g
}

func (r *fakeRepo) addUser(id, name string, role models.UserRole) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := &models.User{ID: id, FullName: name, Email: id + "@example.com", Role: role}
	r.users[id] = u
	return u
}

func (r *fakeRepo) addInstance(testID uint, userID string) *models.TestInstance {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst := &models.TestInstance{ID: r.id(), TestID: testID, UserID: userID}
	r.instances[inst.ID] = inst
	return inst
}

func (r *fakeRepo) assign(instanceID uint, questionIDs ...uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, qid := range questionIDs {
		r.assignments[instanceID] = append(r.assignments[instanceID], &models.TestInstanceQuestion{
			ID: r.id(), TestInstanceID: instanceID, QuestionID: qid,
		})
	}
}

// ===== AGGREGATE =====

func (r *fakeRepo) QuestionSet() repositories.QuestionSetRepository { return (*fakeQuestionSets)(r) }
func (r *fakeRepo) Test() repositories.TestRepository               { return (*fakeTests)(r) }
func (r *fakeRepo) Instance() repositories.InstanceRepository       { return (*fakeInstances)(r) }
func (r *fakeRepo) Group() repositories.GroupRepository             { return (*fakeGroups)(r) }
func (r *fakeRepo) User() repositories.UserRepository               { return (*fakeUsers)(r) }

func (r *fakeRepo) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	r.mu.Lock()
	instancesCopy := make(map[uint]*models.TestInstance, len(r.instances))
	for k, v := range r.instances {
		c := *v
		instancesCopy[k] = &c
	}
	assignmentsCopy := make(map[uint][]*models.TestInstanceQuestion, len(r.assignments))
	for k, v := range r.assignments {
		assignmentsCopy[k] = append([]*models.TestInstanceQuestion(nil), v...)
	}
	submittedCopy := make(map[uint][]*models.SubmittedAnswer, len(r.submitted))
	for k, v := range r.submitted {
		submittedCopy[k] = append([]*models.SubmittedAnswer(nil), v...)
	}
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.instances = instancesCopy
		r.assignments = assignmentsCopy
		r.submitted = submittedCopy
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }
func (r *fakeRepo) Close() error                   { return nil }

// ===== QUESTION SETS =====

type fakeQuestionSets fakeRepo

func (f *fakeQuestionSets) repo() *fakeRepo { return (*fakeRepo)(f) }

func (f *fakeQuestionSets) Create(ctx context.Context, tx *gorm.DB, set *models.QuestionSet) error {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	set.ID = r.id()
	r.questionSets[set.ID] = set
	return nil
}

func (f *fakeQuestionSets) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionSet, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.questionSets[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return set, nil
}

func (f *fakeQuestionSets) Update(ctx context.Context, tx *gorm.DB, set *models.QuestionSet) error {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.questionSets[set.ID]; !ok {
		return repositories.ErrNotFound
	}
	r.questionSets[set.ID] = set
	return nil
}

func (f *fakeQuestionSets) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.questionSets[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.questionSets, id)
	return nil
}

func (f *fakeQuestionSets) GetQuestions(ctx context.Context, tx *gorm.DB, setID uint) ([]*models.Question, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.questionSets[setID]; !ok {
		return nil, repositories.ErrNotFound
	}
	var out []*models.Question
	for _, q := range r.questions {
		if q.QuestionSetID == setID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeQuestionSets) CountQuestions(ctx context.Context, tx *gorm.DB, setID uint) (int64, error) {
	qs, err := f.GetQuestions(ctx, tx, setID)
	if err != nil {
		return 0, err
	}
	return int64(len(qs)), nil
}

func (f *fakeQuestionSets) GetQuestionByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return q, nil
}

func (f *fakeQuestionSets) GetAnswerByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Answer, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.answers[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return a, nil
}

func (f *fakeQuestionSets) CreateQuestion(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	question.ID = r.id()
	r.questions[question.ID] = question
	return nil
}

func (f *fakeQuestionSets) UpdateQuestion(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.questions[question.ID]; !ok {
		return repositories.ErrNotFound
	}
	r.questions[question.ID] = question
	return nil
}

func (f *fakeQuestionSets) DeleteQuestion(ctx context.Context, tx *gorm.DB, id uint) error {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.questions[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.questions, id)
	return nil
}

func (f *fakeQuestionSets) CreateAnswer(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[answer.QuestionID]
	if !ok {
		return repositories.ErrNotFound
	}
	answer.ID = r.id()
	r.answers[answer.ID] = answer
	q.Answers = append(q.Answers, *answer)
	return nil
}

func (f *fakeQuestionSets) UpdateAnswer(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.answers[answer.ID]; !ok {
		return repositories.ErrNotFound
	}
	r.answers[answer.ID] = answer
	if q, ok := r.questions[answer.QuestionID]; ok {
		for i := range q.Answers {
			if q.Answers[i].ID == answer.ID {
				q.Answers[i] = *answer
			}
		}
	}
	return nil
}

func (f *fakeQuestionSets) DeleteAnswer(ctx context.Context, tx *gorm.DB, id uint) error {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.answers[id]
	if !ok {
		return repositories.ErrNotFound
	}
	delete(r.answers, id)
	if q, ok := r.questions[a.QuestionID]; ok {
		kept := q.Answers[:0]
		for _, existing := range q.Answers {
			if existing.ID != id {
				kept = append(kept, existing)
			}
		}
		q.Answers = kept
	}
	return nil
}

func (f *fakeQuestionSets) IsReferenced(ctx context.Context, tx *gorm.DB, setID uint) (bool, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tests {
		if t.QuestionSetID == setID {
			return true, nil
		}
	}
	return false, nil
}

// ===== TESTS =====

type fakeTests fakeRepo

func (f *fakeTests) repo() *fakeRepo { return (*fakeRepo)(f) }

func (f *fakeTests) Create(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	test.ID = r.id()
	r.tests[test.ID] = test
	return nil
}

func (f *fakeTests) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tests[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return t, nil
}

func (f *fakeTests) Update(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tests[test.ID]; !ok {
		return repositories.ErrNotFound
	}
	r.tests[test.ID] = test
	return nil
}

func (f *fakeTests) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tests[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.tests, id)
	return nil
}

func (f *fakeTests) List(ctx context.Context, tx *gorm.DB, filters repositories.TestFilters) ([]*models.Test, int64, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Test
	for _, t := range r.tests {
		if filters.GroupID != nil && t.GroupID != *filters.GroupID {
			continue
		}
		if filters.CreatedBy != nil && t.CreatedBy != *filters.CreatedBy {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (f *fakeTests) GetStats(ctx context.Context, tx *gorm.DB, testID uint) (*repositories.TestStats, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tests[testID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	stats := &repositories.TestStats{MaxScore: t.QuestionAmount}
	var sum int
	for _, inst := range r.instances {
		if inst.TestID != testID {
			continue
		}
		stats.InstanceCount++
		if inst.Submitted {
			stats.SubmittedCount++
			sum += inst.Score
		}
	}
	if stats.SubmittedCount > 0 {
		stats.AverageScore = float64(sum) / float64(stats.SubmittedCount)
	}
	return stats, nil
}

// ===== INSTANCES =====

type fakeInstances fakeRepo

func (f *fakeInstances) repo() *fakeRepo { return (*fakeRepo)(f) }

func (f *fakeInstances) Create(ctx context.Context, tx *gorm.DB, instance *models.TestInstance) error {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.instances {
		if existing.TestID == instance.TestID && existing.UserID == instance.UserID {
			return errors.New("duplicate instance")
		}
	}
	instance.ID = r.id()
	r.instances[instance.ID] = instance
	return nil
}

func (f *fakeInstances) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestInstance, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return inst, nil
}

func (f *fakeInstances) GetByTestAndUser(ctx context.Context, tx *gorm.DB, testID uint, userID string) (*models.TestInstance, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.instances {
		if inst.TestID == testID && inst.UserID == userID {
			return inst, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeInstances) CountByTest(ctx context.Context, tx *gorm.DB, testID uint) (int64, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, inst := range r.instances {
		if inst.TestID == testID {
			n++
		}
	}
	return n, nil
}

func (f *fakeInstances) ListByTest(ctx context.Context, tx *gorm.DB, testID uint, filters repositories.InstanceFilters) ([]*models.TestInstance, int64, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.TestInstance
	for _, inst := range r.instances {
		if inst.TestID != testID {
			continue
		}
		if filters.Submitted != nil && inst.Submitted != *filters.Submitted {
			continue
		}
		if filters.UserID != nil && inst.UserID != *filters.UserID {
			continue
		}
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, total, nil
}

func (f *fakeInstances) CreateAssignments(ctx context.Context, tx *gorm.DB, assignments []*models.TestInstanceQuestion) error {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreateAssignments != nil {
		return r.failCreateAssignments
	}
	for _, a := range assignments {
		a.ID = r.id()
		r.assignments[a.TestInstanceID] = append(r.assignments[a.TestInstanceID], a)
	}
	return nil
}

func (f *fakeInstances) GetAssignedQuestions(ctx context.Context, tx *gorm.DB, instanceID uint) ([]*models.Question, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Question
	for _, a := range r.assignments[instanceID] {
		if q, ok := r.questions[a.QuestionID]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeInstances) SetStartTime(ctx context.Context, tx *gorm.DB, instanceID uint, start time.Time) (bool, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[instanceID]
	if !ok {
		return false, repositories.ErrNotFound
	}
	if inst.StartTime != nil {
		return false, nil
	}
	inst.StartTime = &start
	return true, nil
}

func (f *fakeInstances) MarkSubmitted(ctx context.Context, tx *gorm.DB, instanceID uint, finish time.Time, score int) (bool, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failMarkSubmitted != nil {
		return false, r.failMarkSubmitted
	}
	inst, ok := r.instances[instanceID]
	if !ok {
		return false, repositories.ErrNotFound
	}
	if inst.Submitted {
		return false, nil
	}
	inst.Submitted = true
	inst.FinishTime = &finish
	inst.Score = score
	return true, nil
}

func (f *fakeInstances) UpdateSessionData(ctx context.Context, tx *gorm.DB, instanceID uint, data []byte) error {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[instanceID]
	if !ok {
		return repositories.ErrNotFound
	}
	inst.SessionData = data
	return nil
}

func (f *fakeInstances) CreateSubmittedAnswers(ctx context.Context, tx *gorm.DB, answers []*models.SubmittedAnswer) error {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range answers {
		a.ID = r.id()
		r.submitted[a.TestInstanceID] = append(r.submitted[a.TestInstanceID], a)
	}
	return nil
}

func (f *fakeInstances) GetSubmittedAnswers(ctx context.Context, tx *gorm.DB, instanceID uint) ([]*models.SubmittedAnswer, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submitted[instanceID], nil
}

// ===== GROUPS =====

type fakeGroups fakeRepo

func (f *fakeGroups) repo() *fakeRepo { return (*fakeRepo)(f) }

func (f *fakeGroups) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Group, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return g, nil
}

func (f *fakeGroups) GetActiveStudentIDs(ctx context.Context, tx *gorm.DB, groupID uint) ([]string, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[groupID]; !ok {
		return nil, repositories.ErrNotFound
	}
	var out []string
	for _, m := range r.memberships {
		if m.GroupID == groupID && m.Role == models.MemberStudent && m.Active {
			out = append(out, m.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeGroups) IsInstructor(ctx context.Context, tx *gorm.DB, groupID uint, userID string) (bool, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.memberships {
		if m.GroupID == groupID && m.UserID == userID && m.Role == models.MemberInstructor {
			return true, nil
		}
	}
	return false, nil
}

// ===== USERS =====

type fakeUsers fakeRepo

func (f *fakeUsers) repo() *fakeRepo { return (*fakeRepo)(f) }

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.User
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUsers) ExistsByID(ctx context.Context, id string) (bool, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[id]
	return ok, nil
}

func (f *fakeUsers) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	r := f.repo()
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return false, nil
	}
	return u.Role == role, nil
}

// ===== AUTHORIZATION =====

// fakeAuthz grants management rights to the listed user ids.
type fakeAuthz struct {
	managers map[string]bool
}

func newFakeAuthz(managerIDs ...string) *fakeAuthz {
	m := map[string]bool{}
	for _, id := range managerIDs {
		m[id] = true
	}
	return &fakeAuthz{managers: m}
}

func (a *fakeAuthz) CanManageGroup(ctx context.Context, userID string, groupID uint) (bool, error) {
	return a.managers[userID], nil
}

func (a *fakeAuthz) CanManageCourse(ctx context.Context, userID string, courseID uint) (bool, error) {
	return a.managers[userID], nil
}
