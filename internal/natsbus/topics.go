package natsbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

// TopicAgentTunnel carries messages addressed to an agent instance
// hosted on a remote node.
func TopicAgentTunnel(agentID string) string {
	return fmt.Sprintf("agent.%s.tunnel", agentID)
}

// TopicNodeControl carries provision and teardown commands for a node.
func TopicNodeControl(nodeID string) string {
	return fmt.Sprintf("node.%s.control", nodeID)
}

func TopicEventsAgent(agentID string) string {
	return fmt.Sprintf("events.agent.%s", agentID)
}

func TopicEventsTask(taskID string) string {
	return fmt.Sprintf("events.task.%s", taskID)
}

func TopicEventsJob(jobID string) string {
	return fmt.Sprintf("events.job.%s", jobID)
}

const (
	TopicEventsAll     = "events.>"
	TopicEventsTasks   = "events.task.*"
	TopicEventsJobs    = "events.job.*"
	TopicEventsAgents  = "events.agent.*"
	TopicEventsMessage = "events.message"
)
