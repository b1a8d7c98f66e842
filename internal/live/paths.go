package live

import "strings"

// Path grammar, mirroring the document layout of the remote store:
//
//	projects/{id}
//	projects/{id}/chat
//	projects/{id}/{space}
//	projects/{id}/{space}/{categoryId}/nodes
//	projects/{id}/{space}/{categoryId}/nodes/{nodeId}/childNodes
//	projects/{id}/entities/{entityId}
//	projects/{id}/images/{imageId}

func ProjectPath(projectID string) string {
	return "projects/" + projectID
}

func ChatPath(projectID string) string {
	return "projects/" + projectID + "/chat"
}

func SpacePath(projectID, space string) string {
	return "projects/" + projectID + "/" + space
}

func NodesPath(projectID, space, categoryID string) string {
	return SpacePath(projectID, space) + "/" + categoryID + "/nodes"
}

func ChildNodesPath(projectID, space, categoryID, nodeID string) string {
	return NodesPath(projectID, space, categoryID) + "/" + nodeID + "/childNodes"
}

func EntityPath(projectID, entityID string) string {
	return "projects/" + projectID + "/entities/" + entityID
}

func ImagePath(projectID, imageID string) string {
	return "projects/" + projectID + "/images/" + imageID
}

// SplitPath breaks a path into its segments.
func SplitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
