package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/avi3tal/agentgraph/internal/conversation"
	"github.com/avi3tal/agentgraph/internal/graph"
)

const (
	collAgents    = "agents"
	collTools     = "tools"
	collWorkflows = "workflows"
	collRuns      = "runs"
)

// Mongo stores records in MongoDB, one collection per record kind. Agent,
// tool and workflow ids are ObjectID hex strings.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

var _ Store = (*Mongo)(nil)

type agentDoc struct {
	ID          bson.ObjectID `bson:"_id"`
	Name        string        `bson:"agent_name"`
	Description string        `bson:"agent_description"`
	Prompt      string        `bson:"agent_prompt"`
	Tools       []string      `bson:"tools"`
	CreatedAt   time.Time     `bson:"created_at"`
}

type toolDoc struct {
	ID          bson.ObjectID `bson:"_id"`
	Name        string        `bson:"tool_name"`
	Description string        `bson:"tool_description"`
	Kind        string        `bson:"kind"`
	CreatedAt   time.Time     `bson:"created_at"`
}

type nodeDoc struct {
	AgentID     string   `bson:"agent_id"`
	Name        string   `bson:"name"`
	Description string   `bson:"description"`
	Connects    []string `bson:"connects"`
}

type workflowDoc struct {
	ID          bson.ObjectID `bson:"_id"`
	Name        string        `bson:"workflow_name"`
	Description string        `bson:"workflow_description"`
	Nodes       []nodeDoc     `bson:"workflow"`
	CreatedAt   time.Time     `bson:"created_at"`
}

type messageDoc struct {
	Role    string `bson:"role"`
	Name    string `bson:"name"`
	Content string `bson:"content"`
	NodeID  string `bson:"node_id,omitempty"`
	Failure bool   `bson:"failure,omitempty"`
}

type runDoc struct {
	ID         string       `bson:"_id"`
	WorkflowID string       `bson:"workflow_id"`
	Reason     string       `bson:"reason"`
	FinalText  string       `bson:"final_text"`
	Error      string       `bson:"error"`
	Steps      int          `bson:"steps"`
	Messages   []messageDoc `bson:"messages"`
	StartedAt  time.Time    `bson:"started_at"`
	EndedAt    time.Time    `bson:"ended_at"`
}

// NewMongo connects to uri and uses the given database.
func NewMongo(ctx context.Context, uri, database string, logger *zap.Logger) (*Mongo, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	m := &Mongo{
		client: client,
		db:     client.Database(database),
		logger: logger.With(zap.String("component", "store"), zap.String("driver", "mongo")),
	}
	_, err = m.db.Collection(collRuns).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "workflow_id", Value: 1}, {Key: "started_at", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create run index: %w", err)
	}
	m.logger.Debug("store opened", zap.String("database", database))
	return m, nil
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// Drop removes the database. It is used to clean up test databases.
func (m *Mongo) Drop(ctx context.Context) error {
	return m.db.Drop(ctx)
}

var creationOrder = options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

func (m *Mongo) CreateAgent(ctx context.Context, a graph.Agent) (string, error) {
	a, err := prepareAgent(a)
	if err != nil {
		return "", err
	}
	if err := m.checkTools(ctx, a.Tools); err != nil {
		return "", err
	}
	doc := agentDoc{
		ID:          bson.NewObjectID(),
		Name:        a.Name,
		Description: a.Description,
		Prompt:      a.Prompt,
		Tools:       a.Tools,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := m.db.Collection(collAgents).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert agent: %w", err)
	}
	return doc.ID.Hex(), nil
}

func (m *Mongo) GetAgent(ctx context.Context, id string) (graph.Agent, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return graph.Agent{}, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	var doc agentDoc
	err = m.db.Collection(collAgents).FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return graph.Agent{}, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return graph.Agent{}, fmt.Errorf("find agent: %w", err)
	}
	return doc.agent(), nil
}

func (m *Mongo) LoadAgents(ctx context.Context) ([]graph.Agent, error) {
	cur, err := m.db.Collection(collAgents).Find(ctx, bson.D{}, creationOrder)
	if err != nil {
		return nil, fmt.Errorf("find agents: %w", err)
	}
	var docs []agentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode agents: %w", err)
	}
	out := make([]graph.Agent, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.agent())
	}
	return out, nil
}

func (m *Mongo) SetAgentTools(ctx context.Context, agentID string, toolIDs []string) error {
	oid, err := bson.ObjectIDFromHex(agentID)
	if err != nil {
		return fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	ids := dedupe(toolIDs)
	if err := m.checkTools(ctx, ids); err != nil {
		return err
	}
	res, err := m.db.Collection(collAgents).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "tools", Value: ids}}}},
	)
	if err != nil {
		return fmt.Errorf("update agent tools: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	return nil
}

func (m *Mongo) checkTools(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	oids := make([]bson.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := bson.ObjectIDFromHex(id)
		if err != nil {
			return fmt.Errorf("tool %s: %w", id, ErrNotFound)
		}
		oids = append(oids, oid)
	}
	n, err := m.db.Collection(collTools).CountDocuments(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}}})
	if err != nil {
		return fmt.Errorf("count tools: %w", err)
	}
	if int(n) != len(oids) {
		return fmt.Errorf("tools %v: %w", ids, ErrNotFound)
	}
	return nil
}

func (m *Mongo) CreateTool(ctx context.Context, t graph.Tool) (string, error) {
	t, err := prepareTool(t)
	if err != nil {
		return "", err
	}
	doc := toolDoc{
		ID:          bson.NewObjectID(),
		Name:        t.Name,
		Description: t.Description,
		Kind:        t.Kind,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := m.db.Collection(collTools).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert tool: %w", err)
	}
	return doc.ID.Hex(), nil
}

func (m *Mongo) LoadTools(ctx context.Context) ([]graph.Tool, error) {
	cur, err := m.db.Collection(collTools).Find(ctx, bson.D{}, creationOrder)
	if err != nil {
		return nil, fmt.Errorf("find tools: %w", err)
	}
	var docs []toolDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode tools: %w", err)
	}
	out := make([]graph.Tool, 0, len(docs))
	for _, d := range docs {
		out = append(out, graph.Tool{ID: d.ID.Hex(), Name: d.Name, Description: d.Description, Kind: d.Kind})
	}
	return out, nil
}

func (m *Mongo) SaveWorkflow(ctx context.Context, wf *graph.Workflow) (string, error) {
	c, err := prepareWorkflow(wf)
	if err != nil {
		return "", err
	}

	oid := bson.NewObjectID()
	if c.ID != "" {
		if oid, err = bson.ObjectIDFromHex(c.ID); err != nil {
			return "", fmt.Errorf("workflow id %q: %w", c.ID, ErrInvalidRecord)
		}
	}
	doc := workflowDoc{
		ID:          oid,
		Name:        c.Name,
		Description: c.Description,
		Nodes:       make([]nodeDoc, 0, len(c.Nodes)),
		CreatedAt:   time.Now().UTC(),
	}
	for _, n := range c.Nodes {
		doc.Nodes = append(doc.Nodes, nodeDoc{
			AgentID:     n.AgentID,
			Name:        n.Name,
			Description: n.Description,
			Connects:    n.Connects,
		})
	}

	_, err = m.db.Collection(collWorkflows).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: oid}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return "", fmt.Errorf("save workflow: %w", err)
	}
	return oid.Hex(), nil
}

func (m *Mongo) LoadWorkflow(ctx context.Context, id string) (*graph.Workflow, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	var doc workflowDoc
	err = m.db.Collection(collWorkflows).FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find workflow: %w", err)
	}
	return doc.workflow(), nil
}

func (m *Mongo) LoadWorkflows(ctx context.Context) ([]*graph.Workflow, error) {
	cur, err := m.db.Collection(collWorkflows).Find(ctx, bson.D{}, creationOrder)
	if err != nil {
		return nil, fmt.Errorf("find workflows: %w", err)
	}
	var docs []workflowDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode workflows: %w", err)
	}
	out := make([]*graph.Workflow, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.workflow())
	}
	return out, nil
}

func (m *Mongo) SaveRun(ctx context.Context, r RunRecord) error {
	r, err := prepareRun(r)
	if err != nil {
		return err
	}
	doc := runDoc{
		ID:         r.RunID,
		WorkflowID: r.WorkflowID,
		Reason:     r.Reason,
		FinalText:  r.FinalText,
		Error:      r.Error,
		Steps:      r.Steps,
		Messages:   make([]messageDoc, 0, len(r.Messages)),
		StartedAt:  r.StartedAt.UTC(),
		EndedAt:    r.EndedAt.UTC(),
	}
	for _, msg := range r.Messages {
		doc.Messages = append(doc.Messages, messageDoc{
			Role:    string(msg.Role),
			Name:    msg.Name,
			Content: msg.Content,
			NodeID:  msg.NodeID,
			Failure: msg.Failure,
		})
	}
	_, err = m.db.Collection(collRuns).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: r.RunID}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (m *Mongo) LoadRun(ctx context.Context, runID string) (RunRecord, error) {
	var doc runDoc
	err := m.db.Collection(collRuns).FindOne(ctx, bson.D{{Key: "_id", Value: runID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return RunRecord{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("find run: %w", err)
	}
	r := RunRecord{
		RunID:      doc.ID,
		WorkflowID: doc.WorkflowID,
		Reason:     doc.Reason,
		FinalText:  doc.FinalText,
		Error:      doc.Error,
		Steps:      doc.Steps,
		Messages:   make([]conversation.Message, 0, len(doc.Messages)),
		StartedAt:  doc.StartedAt,
		EndedAt:    doc.EndedAt,
	}
	for _, msg := range doc.Messages {
		r.Messages = append(r.Messages, conversation.Message{
			Role:    conversation.Role(msg.Role),
			Name:    msg.Name,
			Content: msg.Content,
			NodeID:  msg.NodeID,
			Failure: msg.Failure,
		})
	}
	return r, nil
}

func (d agentDoc) agent() graph.Agent {
	return graph.Agent{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Description: d.Description,
		Prompt:      d.Prompt,
		Tools:       d.Tools,
	}
}

func (d workflowDoc) workflow() *graph.Workflow {
	wf := &graph.Workflow{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Description: d.Description,
		Nodes:       make([]graph.Node, 0, len(d.Nodes)),
	}
	for _, n := range d.Nodes {
		wf.Nodes = append(wf.Nodes, graph.Node{
			AgentID:     n.AgentID,
			Name:        n.Name,
			Description: n.Description,
			Connects:    n.Connects,
		})
	}
	return wf
}
